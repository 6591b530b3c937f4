package models

import (
	"fmt"
	"strings"
)

// Department keys used by the creation forms.
const (
	DeptGarbage     = "garbage"
	DeptStreetlight = "streetlight"
	DeptRoadDamage  = "roaddamage"
	DeptWater       = "water"
	DeptDrainage    = "drainage"
)

var categoryCodes = map[string]string{
	DeptGarbage:     "GBG",
	DeptStreetlight: "SLT",
	DeptRoadDamage:  "RDG",
	DeptWater:       "WTR",
	DeptDrainage:    "DRN",
}

var departmentDisplayNames = map[string]string{
	DeptGarbage:     "Garbage",
	DeptStreetlight: "Streetlight",
	DeptRoadDamage:  "Road Damage",
	DeptWater:       "Water",
	DeptDrainage:    "Drainage & Sewerage",
}

// issueTypes names an issue after the category code that prefixes its id.
var issueTypes = map[string]string{
	"RDG": "Road Damage",
	"DRN": "Drainage & Sewage",
	"WTR": "Water",
	"GBG": "Garbage",
	"SLT": "StreetLight",
}

// Departments returns the known department keys in a stable order.
func Departments() []string {
	return []string{DeptGarbage, DeptStreetlight, DeptRoadDamage, DeptWater, DeptDrainage}
}

// CategoryCode returns the three letter code of a department. Unknown departments use their
// first three characters upper-cased, and an empty department yields GEN.
func CategoryCode(department string) string {
	if code, ok := categoryCodes[department]; ok {
		return code
	}
	if department == "" {
		return "GEN"
	}

	runes := []rune(department)
	if len(runes) > 3 {
		runes = runes[:3]
	}

	return strings.ToUpper(string(runes))
}

// DepartmentDisplayName returns the label department heads are stored under. Unknown
// departments are returned unchanged.
func DepartmentDisplayName(department string) string {
	if name, ok := departmentDisplayNames[department]; ok {
		return name
	}

	return department
}

// IssueTypeFromID derives an issue type from the category code prefixing the id.
func IssueTypeFromID(id string) string {
	prefix, _, _ := strings.Cut(id, "-")
	if name, ok := issueTypes[strings.ToUpper(prefix)]; ok {
		return name
	}
	if len(id) >= 3 {
		if name, ok := issueTypes[strings.ToUpper(id[:3])]; ok {
			return name
		}
	}

	return "Unknown"
}

// WorkerID formats a worker identifier: {code}-{pincode}-{seq:03d}.
func WorkerID(department, pincode string, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", CategoryCode(department), pincode, seq)
}

// HeadID formats a department head identifier: {code}{seq:03d}.
func HeadID(department string, seq int) string {
	return fmt.Sprintf("%s%03d", CategoryCode(department), seq)
}

// NormalizeDepartment strips whitespace and lower-cases a department label so that
// "Road Damage", "road damage" and "roaddamage" compare equal.
func NormalizeDepartment(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
