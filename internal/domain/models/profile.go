package models

// BrowserProfileConfig identifies one persistent, authenticated browser profile
type BrowserProfileConfig struct {
	ProfileName  string `json:"profile_name"`
	ProfilePath  string `json:"profile_path"`
	LockFilePath string `json:"lock_file_path"`
}
