package archive

// Manifest is the parsed config.json at the root of a submission
// archive (spec.md §3, §4.1).
type Manifest struct {
	Entry      string `json:"entry"`
	Data       string `json:"data,omitempty"`
	Network    string `json:"network,omitempty"`
	Seeds      string `json:"seeds,omitempty"`
	Parameters string `json:"parameters"`
	Time       int    `json:"time"`
	Memory     int    `json:"memory"`
	CPU        int    `json:"cpu"`
	SeedCount  int    `json:"seedCount,omitempty"`
	Model      string `json:"model,omitempty"`

	// Seed is a pointer so presence can be distinguished from the zero
	// value: $seed substitution (spec.md §4.1) only happens when the
	// manifest carried the field at all, and an RNG seed of 0 is valid.
	Seed *int64 `json:"seed,omitempty"`
}
