package domain

// TenantConfig is the credential triple for one storefront's conversion-API
// account. Resolved once per request and passed by value through the call
// chain; it is never written into shared state.
type TenantConfig struct {
	PixelID     string `json:"pixel_id"`
	AccessToken string `json:"access_token"`
	TestCode    string `json:"test_code"`
}

// UserRecord is the persisted identity snapshot for one external id. It is
// created exactly once, on the first PageView observed for that id, and the
// relay pipeline never updates it afterwards: a later page view must not
// overwrite earlier, possibly more complete, identity data.
type UserRecord struct {
	ContentID   string
	ExternalID  string
	ClientIP    string
	UserAgent   string
	ClickID     string
	PairingID   string
	CountryCode string
	RegionCode  string
	City        string
	PostalCode  string
	Personal    PersonalData
}
