package ty

import (
	"os"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\$(\{([a-zA-Z_][a-zA-Z0-9_]*)(:-([^}]*))?\}|([a-zA-Z_][a-zA-Z0-9_]*))`)

// Resolve expands $VAR, ${VAR} and ${VAR:-default} in input. vars takes
// precedence over the process environment; unresolved references without a
// default are left untouched.
func Resolve(input string, vars map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(ref string) string {
		m := variablePattern.FindStringSubmatch(ref)
		name := m[2]
		if name == "" {
			name = m[5]
		}

		if val, ok := vars[name]; ok {
			return val
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if strings.HasPrefix(m[3], ":-") {
			return m[4]
		}
		return ref
	})
}

// ResolveVariables expands variables in every value using the environment.
func (ms MS) ResolveVariables() MS {
	return ms.ResolveVariablesWith(nil)
}

// ResolveVariablesWith expands variables in every value.
func (ms MS) ResolveVariablesWith(vars map[string]string) MS {
	resolved := make(MS, len(ms))
	for k, v := range ms {
		resolved[k] = Resolve(v, vars)
	}
	return resolved
}

// ResolveVariables expands string values; other values are copied unchanged.
func (mi MI) ResolveVariables() MI {
	return mi.ResolveVariablesWith(nil)
}

// ResolveVariablesWith expands string values, recursing into nested maps.
func (mi MI) ResolveVariablesWith(vars map[string]string) MI {
	resolved := make(MI, len(mi))
	for k, v := range mi {
		switch vv := v.(type) {
		case string:
			resolved[k] = Resolve(vv, vars)
		case map[string]interface{}:
			resolved[k] = MI(vv).ResolveVariablesWith(vars)
		case MI:
			resolved[k] = vv.ResolveVariablesWith(vars)
		default:
			resolved[k] = v
		}
	}
	return resolved
}
