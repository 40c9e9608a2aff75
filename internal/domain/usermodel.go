package domain

// SegmentScore is one entry of a user model list.
type SegmentScore struct {
	Segment string  `json:"segment" yaml:"segment"`
	Score   float64 `json:"score" yaml:"score"`
}

// UserModel holds the three interest lists derived outside the serving core.
type UserModel struct {
	Intent         []SegmentScore `json:"intent" yaml:"intent"`
	LatentInterest []SegmentScore `json:"latent_interest" yaml:"latent_interest"`
	Interest       []SegmentScore `json:"interest" yaml:"interest"`
}

// IsEmpty reports whether every list is empty.
func (m UserModel) IsEmpty() bool {
	return len(m.Intent) == 0 && len(m.LatentInterest) == 0 && len(m.Interest) == 0
}

// Profile is everything the serving core reads about the user for one cycle.
type Profile struct {
	UserModel       UserModel `json:"user_model" yaml:"user_model"`
	BrowsingHistory []string  `json:"browsing_history" yaml:"browsing_history"`
	Region          string    `json:"region" yaml:"region"`
}
