package web

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const authRealm = "bookcal"

// isBcryptHash reports whether a configured password is a bcrypt hash
// rather than plaintext.
func isBcryptHash(p string) bool {
	return strings.HasPrefix(p, "$2a$") || strings.HasPrefix(p, "$2b$") || strings.HasPrefix(p, "$2y$")
}

// basicAuth guards a route group with one account. The password may be
// stored as plaintext or as a bcrypt hash.
func basicAuth(username, password string) gin.HandlerFunc {
	hashed := isBcryptHash(password)
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if ok && subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1 {
			if hashed {
				ok = bcrypt.CompareHashAndPassword([]byte(password), []byte(pass)) == nil
			} else {
				ok = subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
			}
		} else {
			ok = false
		}
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="`+authRealm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(gin.AuthUserKey, user)
		c.Next()
	}
}
