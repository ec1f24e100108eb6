package types

// Taxonomy codes attached to every finding.
const (
	ASST01 = "ASST-01"
	ASST02 = "ASST-02"
	ASST03 = "ASST-03"
	ASST04 = "ASST-04"
	ASST05 = "ASST-05"
	ASST06 = "ASST-06"
	ASST07 = "ASST-07"
	ASST08 = "ASST-08"
	ASST09 = "ASST-09"
	ASST10 = "ASST-10"
	ASST11 = "ASST-11"
)

var taxonomyTitles = map[string]string{
	ASST01: "Instruction Injection",
	ASST02: "Data Exfiltration",
	ASST03: "Privilege Escalation",
	ASST04: "Dependency Hijacking",
	ASST05: "Credential Harvesting",
	ASST06: "Prompt Injection Relay",
	ASST07: "Deceptive Functionality",
	ASST08: "Excessive Permissions",
	ASST09: "Missing Safety Boundaries",
	ASST10: "Obfuscation",
	ASST11: "Trigger Manipulation",
}

// TaxonomyTitle returns the human name of a taxonomy code, or the code itself
// when unknown.
func TaxonomyTitle(code string) string {
	if t, ok := taxonomyTitles[code]; ok {
		return t
	}
	return code
}

// IsTaxonomyCode reports whether code is one of the eleven known codes.
func IsTaxonomyCode(code string) bool {
	_, ok := taxonomyTitles[code]
	return ok
}
