package plans

// Unlimited marks a plan without a monthly analysis ceiling.
const Unlimited = -1

type Plan struct {
	Name          string `json:"name"`
	AnalysisLimit int    `json:"analysis_limit"`
}

var catalog = map[string]Plan{
	"free":       {Name: "free", AnalysisLimit: 10},
	"starter":    {Name: "starter", AnalysisLimit: 50},
	"pro":        {Name: "pro", AnalysisLimit: 200},
	"enterprise": {Name: "enterprise", AnalysisLimit: Unlimited},
}

// Lookup resolves a plan by name. Unknown or empty names fall back to
// the free plan so a missing subscription row never blocks a user.
func Lookup(name string) Plan {
	if p, ok := catalog[name]; ok {
		return p
	}
	return catalog["free"]
}

// Names returns the known plan names.
func Names() []string {
	return []string{"free", "starter", "pro", "enterprise"}
}
