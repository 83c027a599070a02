package action

import "strings"

// Command is one parsed action string.
type Command struct {
	Verb Verb
	// Raw is the argument payload; for class: and store: verbs the sub-verb
	// has already been consumed.
	Raw string
}

// Parse splits an action string into its verb and raw argument. It never
// fails: anything it cannot recognize comes back as VerbUnknown.
//
//	alert:Hello                 -> alert, "Hello"
//	store:set theme|dark        -> store:set, "theme|dark"
//	class:toggle .box|ring-2    -> class:toggle, ".box|ring-2"
//	/api/ping                   -> shorthand-get, "/api/ping"
func Parse(s string) Command {
	s = strings.TrimSpace(s)
	if s == "" {
		return Command{Verb: VerbUnknown}
	}
	if strings.HasPrefix(s, "/") {
		return Command{Verb: VerbShorthandGet, Raw: s}
	}

	token, raw, _ := strings.Cut(s, ":")
	token = strings.ToLower(strings.TrimSpace(token))

	if subs, ok := compoundVerbs[token]; ok {
		sub, rest := splitWord(raw)
		v, ok := subs[strings.ToLower(sub)]
		if !ok {
			return Command{Verb: VerbUnknown, Raw: raw}
		}
		return Command{Verb: v, Raw: rest}
	}

	v, ok := lookupVerb(token)
	if !ok {
		return Command{Verb: VerbUnknown, Raw: raw}
	}
	return Command{Verb: v, Raw: raw}
}

// splitWord returns the first space-delimited word of s and the remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i+1:], " \t")
}

// splitPipe splits at the first '|'. The second field keeps any further '|'.
func splitPipe(s string) (string, string, bool) {
	return strings.Cut(s, "|")
}
