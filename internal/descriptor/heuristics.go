package descriptor

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	hexLike      = regexp.MustCompile(`^[0-9a-fA-F]{8,}$`)
	uuidLike     = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}`)
	digitRun     = regexp.MustCompile(`\d{4,}`)
	reactUseID   = regexp.MustCompile(`^:r[0-9a-z]+:$|^«r[0-9a-z]+»$`)
	hashSuffix   = regexp.MustCompile(`[-_][a-zA-Z0-9]{5,}$`)
	mixedHash    = regexp.MustCompile(`^[a-zA-Z]*\d+[a-zA-Z]+\d+[a-zA-Z0-9]*$`)
	cssIdentOnly = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)
	utilityClass = regexp.MustCompile(`^(m|p|mt|mb|ml|mr|mx|my|pt|pb|pl|pr|px|py|w|h|gap|text|bg|border|rounded|flex|grid|col|row|items|justify|font|leading|tracking|shadow|opacity|z|top|left|right|bottom|inset|space|order|min|max)-`)
)

// framework prefixes that mint ids per render or per mount.
var generatedIDPrefixes = []string{
	"ember", "mui-", "radix-", "headlessui-", "react-select-", "downshift-",
	"rc_select_", "el-id-", "cdk-", "mat-", "ext-gen", "yui_", "gwt-uid-", "__",
}

var stateClasses = map[string]bool{
	"active": true, "focus": true, "focused": true, "hover": true, "selected": true,
	"checked": true, "disabled": true, "open": true, "opened": true, "closed": true,
	"visible": true, "hidden": true, "show": true, "in": true, "collapsed": true,
	"expanded": true, "valid": true, "invalid": true, "error": true, "dirty": true,
	"pristine": true, "touched": true, "untouched": true, "loading": true,
}

var dynamicClassPrefixes = []string{
	"is-", "has-", "ng-", "css-", "sc-", "jsx-", "svelte-", "emotion-", "makeStyles-", "jss",
}

// IsStableID reports whether an id attribute looks hand written rather than
// minted by a framework or a counter.
func IsStableID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if unicode.IsDigit(rune(id[0])) {
		return false
	}
	if hexLike.MatchString(id) || uuidLike.MatchString(id) || reactUseID.MatchString(id) {
		return false
	}
	if digitRun.MatchString(id) || mixedHash.MatchString(id) {
		return false
	}
	lower := strings.ToLower(id)
	for _, p := range generatedIDPrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

// IsStableClass reports whether a class is likely to survive a re-render.
// State toggles, CSS-in-JS hashes and atomic utility classes are rejected,
// as is anything starting with excludePrefix.
func IsStableClass(class, excludePrefix string) bool {
	if class == "" || !cssIdentOnly.MatchString(class) {
		return false
	}
	if excludePrefix != "" && strings.HasPrefix(class, excludePrefix) {
		return false
	}
	if stateClasses[strings.ToLower(class)] {
		return false
	}
	for _, p := range dynamicClassPrefixes {
		if strings.HasPrefix(class, p) {
			return false
		}
	}
	if utilityClass.MatchString(class) || digitRun.MatchString(class) {
		return false
	}
	if hashSuffix.MatchString(class) && hasDigit(class[strings.LastIndexAny(class, "-_")+1:]) {
		return false
	}
	return !mixedHash.MatchString(class)
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// StableClasses returns at most limit stable classes of the list, in order.
func StableClasses(classes []string, excludePrefix string, limit int) []string {
	var out []string
	for _, c := range classes {
		if len(out) == limit {
			break
		}
		if IsStableClass(c, excludePrefix) {
			out = append(out, c)
		}
	}
	return out
}
