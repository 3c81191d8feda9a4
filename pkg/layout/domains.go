package layout

// Domain names double as oracle key scopes: one attestation keypair per
// document type, independent of deployment environment.
const (
	DomainCorporateRegistration = "corporate-registration"
	DomainTradeLicense          = "trade-license"
	DomainLegalEntity           = "legal-entity"
	DomainShippingDocument      = "shipping-document"
	DomainLiquidityRisk         = "liquidity-risk"
)

// builtin holds the shipped layout per domain. Slot assignments are frozen:
// remapping a live field would invalidate every historical proof.
var builtin = map[string]*DocumentLayout{
	DomainCorporateRegistration: {
		Type:           DomainCorporateRegistration,
		Version:        1,
		EntityKeyField: "registrationNumber",
		Fields: []FieldSpec{
			{Name: "registrationNumber", Slot: 0, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "companyName", Slot: 1, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "registrationStatus", Slot: 2, Encoding: EncodingEnum, Mandatory: true},
			{Name: "companyType", Slot: 3, Encoding: EncodingEnum},
			{Name: "jurisdiction", Slot: 4, Encoding: EncodingPattern, Mandatory: true},
			{Name: "incorporationDate", Slot: 5, Encoding: EncodingDate, Mandatory: true},
			{Name: "dissolutionDate", Slot: 6, Encoding: EncodingDate},
			{Name: "registeredAddress", Slot: 7, Encoding: EncodingOpaque,
				Bundle: []string{"street", "city", "region", "postalCode", "country"}},
			{Name: "officerCount", Slot: 8, Encoding: EncodingCount},
			{Name: "sicCodes", Slot: 9, Encoding: EncodingCount},
		},
	},
	DomainTradeLicense: {
		Type:           DomainTradeLicense,
		Version:        1,
		EntityKeyField: "licenseNumber",
		Fields: []FieldSpec{
			{Name: "licenseNumber", Slot: 0, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "holderName", Slot: 1, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "licenseStatus", Slot: 2, Encoding: EncodingEnum, Mandatory: true},
			{Name: "licenseType", Slot: 3, Encoding: EncodingEnum, Mandatory: true},
			{Name: "issuingAuthority", Slot: 4, Encoding: EncodingOpaque},
			{Name: "issueDate", Slot: 5, Encoding: EncodingDate, Mandatory: true},
			{Name: "expiryDate", Slot: 6, Encoding: EncodingDate, Mandatory: true},
			{Name: "permittedGoods", Slot: 7, Encoding: EncodingCount},
			{Name: "countryOfIssue", Slot: 8, Encoding: EncodingPattern, Mandatory: true},
		},
	},
	DomainLegalEntity: {
		Type:           DomainLegalEntity,
		Version:        1,
		EntityKeyField: "lei",
		Fields: []FieldSpec{
			{Name: "lei", Slot: 0, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "legalName", Slot: 1, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "entityStatus", Slot: 2, Encoding: EncodingEnum, Mandatory: true},
			{Name: "registrationStatus", Slot: 3, Encoding: EncodingEnum, Mandatory: true},
			{Name: "conformityFlag", Slot: 4, Encoding: EncodingEnum},
			{Name: "legalJurisdiction", Slot: 5, Encoding: EncodingPattern, Mandatory: true},
			{Name: "initialRegistrationDate", Slot: 6, Encoding: EncodingDate, Mandatory: true},
			{Name: "nextRenewalDate", Slot: 7, Encoding: EncodingDate, Mandatory: true},
			{Name: "headquartersAddress", Slot: 8, Encoding: EncodingOpaque,
				Bundle: []string{"addressLines", "city", "region", "postalCode", "country"}},
			{Name: "legalAddress", Slot: 9, Encoding: EncodingOpaque,
				Bundle: []string{"addressLines", "city", "region", "postalCode", "country"}},
		},
	},
	DomainShippingDocument: {
		Type:           DomainShippingDocument,
		Version:        1,
		EntityKeyField: "documentNumber",
		Fields: []FieldSpec{
			{Name: "documentNumber", Slot: 0, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "shipperName", Slot: 1, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "consigneeName", Slot: 2, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "documentStatus", Slot: 3, Encoding: EncodingEnum, Mandatory: true},
			{Name: "originCountry", Slot: 4, Encoding: EncodingPattern, Mandatory: true},
			{Name: "destinationCountry", Slot: 5, Encoding: EncodingPattern, Mandatory: true},
			{Name: "issueDate", Slot: 6, Encoding: EncodingDate, Mandatory: true},
			{Name: "cargoItems", Slot: 7, Encoding: EncodingCount, Mandatory: true},
			{Name: "hazardousFlag", Slot: 8, Encoding: EncodingBoolean},
			{Name: "vesselName", Slot: 9, Encoding: EncodingOpaque},
		},
	},
	DomainLiquidityRisk: {
		Type:           DomainLiquidityRisk,
		Version:        1,
		EntityKeyField: "reportingEntityId",
		Fields: []FieldSpec{
			{Name: "reportingEntityId", Slot: 0, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "reportStatus", Slot: 1, Encoding: EncodingEnum, Mandatory: true},
			{Name: "reportingPeriodStart", Slot: 2, Encoding: EncodingDate, Mandatory: true},
			{Name: "reportingPeriodEnd", Slot: 3, Encoding: EncodingDate, Mandatory: true},
			{Name: "liquidityCoverageRatio", Slot: 4, Encoding: EncodingOpaque, Mandatory: true},
			{Name: "netStableFundingRatio", Slot: 5, Encoding: EncodingOpaque},
			{Name: "currency", Slot: 6, Encoding: EncodingPattern, Mandatory: true},
			{Name: "datasetEntries", Slot: 7, Encoding: EncodingCount, Mandatory: true},
		},
	},
}

// Builtin returns the shipped layout for a domain, or false if the domain
// is unknown.
func Builtin(domain string) (*DocumentLayout, bool) {
	l, ok := builtin[domain]
	return l, ok
}

// Domains lists every domain with a builtin layout.
func Domains() []string {
	return []string{
		DomainCorporateRegistration,
		DomainTradeLicense,
		DomainLegalEntity,
		DomainShippingDocument,
		DomainLiquidityRisk,
	}
}
