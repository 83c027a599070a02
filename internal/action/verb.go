package action

import "strings"

// Verb is the closed set of commands the action-string grammar recognizes.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbAlert
	VerbLog
	VerbOpen
	VerbNav
	VerbBack
	VerbReload
	VerbCopy
	VerbDownload
	VerbScroll
	VerbClassToggle
	VerbStoreSet
	VerbStoreGet
	VerbStoreRemove
	VerbAPI
	VerbShorthandGet

	verbCount
)

var verbNames = [verbCount]string{
	VerbUnknown:      "unknown",
	VerbAlert:        "alert",
	VerbLog:          "log",
	VerbOpen:         "open",
	VerbNav:          "nav",
	VerbBack:         "back",
	VerbReload:       "reload",
	VerbCopy:         "copy",
	VerbDownload:     "download",
	VerbScroll:       "scroll",
	VerbClassToggle:  "class:toggle",
	VerbStoreSet:     "store:set",
	VerbStoreGet:     "store:get",
	VerbStoreRemove:  "store:remove",
	VerbAPI:          "api",
	VerbShorthandGet: "shorthand-get",
}

// String returns the grammar token of v.
func (v Verb) String() string {
	if v < 0 || v >= verbCount {
		return verbNames[VerbUnknown]
	}
	return verbNames[v]
}

// Known reports whether v is one of the recognized verbs.
func (v Verb) Known() bool {
	return v > VerbUnknown && v < verbCount
}

// Verbs lists every recognized verb.
func Verbs() []Verb {
	out := make([]Verb, 0, int(verbCount)-1)
	for v := VerbUnknown + 1; v < verbCount; v++ {
		out = append(out, v)
	}
	return out
}

// simpleVerbs maps single-token verbs. shorthand-get is only reachable
// through a leading slash.
var simpleVerbs = map[string]Verb{
	"alert":    VerbAlert,
	"log":      VerbLog,
	"open":     VerbOpen,
	"nav":      VerbNav,
	"back":     VerbBack,
	"reload":   VerbReload,
	"copy":     VerbCopy,
	"download": VerbDownload,
	"scroll":   VerbScroll,
	"api":      VerbAPI,
}

// compoundVerbs maps a family token to its sub-verbs.
var compoundVerbs = map[string]map[string]Verb{
	"class": {
		"toggle": VerbClassToggle,
	},
	"store": {
		"set":    VerbStoreSet,
		"get":    VerbStoreGet,
		"remove": VerbStoreRemove,
	},
}

func lookupVerb(token string) (Verb, bool) {
	v, ok := simpleVerbs[strings.ToLower(token)]
	return v, ok
}
