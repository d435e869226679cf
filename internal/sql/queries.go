// Package sql embeds the schema migrations and the hand-written queries.
package sql

import (
	"embed"
)

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/select_admissions.sql
var SelectAdmissions string

//go:embed queries/select_descriptions.sql
var SelectDescriptions string

//go:embed queries/select_states.sql
var SelectStates string

//go:embed queries/fold_beneficiaries.sql
var FoldBeneficiaries string

//go:embed queries/apply_crosswalk.sql
var ApplyCrosswalk string

//go:embed queries/register_import_file.sql
var RegisterImportFile string

//go:embed queries/lookup_import_files.sql
var LookupImportFiles string
