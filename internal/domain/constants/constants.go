package constants

const (
	User  = "user"
	Admin = "admin"
)

// Marketplaces a package can belong to. Used as the per-camera default
// platform tag and as a filter on the history endpoints.
var Platforms = []string{"SHOPEE", "TOKOPEDIA", "LAZADA", "TIKTOK", "LAINNYA"}

const DefaultPlatform = "LAINNYA"
