package profile

// Profile is the public card shown next to a wallet in chat and campaigns.
type Profile struct {
	Wallet string `json:"wallet"`
	Name   string `json:"name"`
	Bio    string `json:"bio"`
}

// UpsertRequest leaves a stored field untouched when it is nil.
type UpsertRequest struct {
	Wallet string  `json:"wallet" validate:"required"`
	Name   *string `json:"name" validate:"omitempty,max=100"`
	Bio    *string `json:"bio" validate:"omitempty,max=1000"`
}
