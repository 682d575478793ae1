package policy

import (
	"strings"
	"unicode"
)

// canonicalAliases maps each canonical document key to labels classifiers
// are known to return for it. Members must not overlap across entries:
// matching uses substring containment.
var canonicalAliases = map[string][]string{
	"pan_card":           {"pan_copy", "pancard", "pan_number", "co_applicant_pan", "permanent_account_number", "income_tax_pan"},
	"aadhaar_card":       {"aadhar_card", "aadhaar", "aadhar", "uidai", "e_aadhaar", "co_applicant_aadhaar", "masked_aadhaar"},
	"passport":           {"passport_copy", "indian_passport", "passport_front", "passport_back"},
	"voter_id":           {"voter_card", "voters_id", "epic_card", "election_card"},
	"driving_license":    {"driving_licence", "driver_license", "drivers_license", "dl_copy"},
	"bank_statement":     {"bank_passbook", "account_statement", "bank_account_statement", "passbook"},
	"salary_slip":        {"payslip", "pay_slip", "salary_certificate", "salary_statement"},
	"itr":                {"income_tax_return", "itr_v", "itr_acknowledgement", "tax_return"},
	"form_16":            {"form16", "form_16a", "tds_certificate"},
	"admission_letter":   {"offer_letter", "admission_offer", "university_admission", "acceptance_letter", "i_20", "cas_letter"},
	"marksheet_10th":     {"10th_marksheet", "ssc_marksheet", "sslc", "class_10_marksheet", "secondary_school_certificate"},
	"marksheet_12th":     {"12th_marksheet", "hsc_marksheet", "class_12_marksheet", "higher_secondary_certificate"},
	"degree_certificate": {"graduation_certificate", "degree_marksheet", "provisional_certificate", "transcript", "bachelors_degree"},
	"fee_structure":      {"fee_schedule", "fee_letter", "tuition_fee_structure", "cost_of_attendance"},
	"photograph":         {"photo", "applicant_photo", "recent_photograph"},
	"property_document":  {"property_papers", "sale_deed", "title_deed", "property_valuation", "collateral_document"},
	"gst_certificate":    {"gst_registration", "gstin_certificate", "gst_return"},
	"nre_nro_statement":  {"nre_statement", "nro_statement", "nri_statement", "nre_nro_account", "overseas_statement"},
	"visa":               {"student_visa", "visa_copy", "f1_visa"},
}

// AliasTable returns a copy of the canonical alias table.
func AliasTable() map[string][]string {
	out := make(map[string][]string, len(canonicalAliases))
	for k, v := range canonicalAliases {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// NormalizeLabel lowercases s and collapses every run of non-alphanumeric
// characters into a single underscore.
func NormalizeLabel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// MatchesExpectedType reports whether a classifier label denotes the
// expected canonical document type.
func MatchesExpectedType(detected, expected string) bool {
	d := NormalizeLabel(detected)
	e := NormalizeLabel(expected)
	if d == "" || e == "" {
		return false
	}
	if d == e {
		return true
	}

	for canonical, aliases := range canonicalAliases {
		if matchesUnion(d, canonical, aliases) && matchesUnion(e, canonical, aliases) {
			return true
		}
	}

	return strings.Contains(d, e) || strings.Contains(e, d)
}

func matchesUnion(label, canonical string, aliases []string) bool {
	if related(label, canonical) {
		return true
	}
	for _, alias := range aliases {
		if related(label, alias) {
			return true
		}
	}
	return false
}

func related(a, b string) bool {
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}
