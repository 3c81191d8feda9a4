package document

import "github.com/attestra/compliance-zkproof/pkg/layout"

// samples holds one known-good parsed document per builtin domain. Used by
// the fixture exporter, the local verification command, and tests; each
// document satisfies every core predicate of its domain when proven at a
// time before 2030.
var samples = map[string]map[string]any{
	layout.DomainCorporateRegistration: {
		"registrationNumber": "RC-2219845",
		"companyName":        "Acme Exports Ltd",
		"registrationStatus": "ACTIVE",
		"companyType":        "PRIVATE_LIMITED",
		"jurisdiction":       "GB",
		"incorporationDate":  "2015-06-01",
		"dissolutionDate":    "",
		"registeredAddress": map[string]any{
			"street":     "14 Harbour Way",
			"city":       "London",
			"region":     "Greater London",
			"postalCode": "E14 9GE",
			"country":    "GB",
		},
		"officerCount": 3,
		"sicCodes":     2,
	},
	layout.DomainTradeLicense: {
		"licenseNumber":    "TL-88231",
		"holderName":       "Acme Exports Ltd",
		"licenseStatus":    "ISSUED",
		"licenseType":      "EXPORT",
		"issuingAuthority": "Department of Economic Development",
		"issueDate":        "2024-01-10",
		"expiryDate":       "2030-01-10",
		"permittedGoods":   12,
		"countryOfIssue":   "AE",
	},
	layout.DomainLegalEntity: {
		"lei":                     "529900T8BM49AURSDO55",
		"legalName":               "Acme Exports Ltd",
		"entityStatus":            "ACTIVE",
		"registrationStatus":      "ISSUED",
		"conformityFlag":          "",
		"legalJurisdiction":       "GB",
		"initialRegistrationDate": "2019-04-02",
		"nextRenewalDate":         "2030-04-02",
		"headquartersAddress": map[string]any{
			"addressLines": []string{"14 Harbour Way"},
			"city":         "London",
			"region":       "Greater London",
			"postalCode":   "E14 9GE",
			"country":      "GB",
		},
		"legalAddress": map[string]any{
			"addressLines": []string{"14 Harbour Way"},
			"city":         "London",
			"region":       "Greater London",
			"postalCode":   "E14 9GE",
			"country":      "GB",
		},
	},
	layout.DomainShippingDocument: {
		"documentNumber":     "BL-20240811-07",
		"shipperName":        "Acme Exports Ltd",
		"consigneeName":      "Nordwind Imports GmbH",
		"documentStatus":     "ISSUED",
		"originCountry":      "AE",
		"destinationCountry": "DE",
		"issueDate":          "2025-05-20",
		"cargoItems":         4,
		"hazardousFlag":      false,
		"vesselName":         "MV Crescent Dawn",
	},
	layout.DomainLiquidityRisk: {
		"reportingEntityId":      "LR-ENT-0099",
		"reportStatus":           "SUBMITTED",
		"reportingPeriodStart":   "2025-01-01",
		"reportingPeriodEnd":     "2030-12-31",
		"liquidityCoverageRatio": "1.42",
		"netStableFundingRatio":  "1.18",
		"currency":               "USD",
		"datasetEntries":         250,
	},
}

// Sample returns a copy of the known-good parsed document for a builtin
// domain, or false if the domain has none.
func Sample(domain string) (map[string]any, bool) {
	src, ok := samples[domain]
	if !ok {
		return nil, false
	}
	doc := make(map[string]any, len(src))
	for k, v := range src {
		doc[k] = v
	}
	return doc, true
}
