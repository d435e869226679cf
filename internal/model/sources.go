package model

// Source describes one kind of SynPUF extract the importer understands.
type Source struct {
	Name    string // e.g. "claims"
	Dir     string // subdirectory under the data root, e.g. "inpatient"
	Archive string // optional zip inside Dir, e.g. "inpatient.zip"
	Table   string // destination table, schema-qualified
}

// AllSources lists the importable extracts in pipeline order.
var AllSources = []Source{
	{Name: "state", Dir: "state", Table: "claims.state"},
	{Name: "claims", Dir: "inpatient", Archive: "inpatient.zip", Table: "claims.inpatient_claims"},
	{Name: "beneficiaries", Dir: "bene", Archive: "bene.zip", Table: "claims.beneficiary_summary"},
	{Name: "icd", Dir: "icd", Table: "claims.icd10_diag_desc"},
}

// SourceNames returns the names of all sources in pipeline order.
func SourceNames() []string {
	names := make([]string, len(AllSources))
	for i, s := range AllSources {
		names[i] = s.Name
	}
	return names
}

// SourceByName returns the Source for the given name, or ok=false.
func SourceByName(name string) (Source, bool) {
	for _, s := range AllSources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}
