package client

// ListResponse is the part of the list endpoint payload the ingester needs.
type ListResponse struct {
	Count int `json:"count"`
}

// Detail is the upstream detail document. Height and Weight are raw tenths.
type Detail struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Height         int        `json:"height"`
	Weight         int        `json:"weight"`
	BaseExperience *int       `json:"base_experience"`
	Types          []TypeSlot `json:"types"`
	Sprites        Sprites    `json:"sprites"`
}

// TypeSlot is one entry of the upstream "types" list.
type TypeSlot struct {
	Slot int         `json:"slot"`
	Type NamedAPIRef `json:"type"`
}

// NamedAPIRef is an upstream reference to another named resource.
type NamedAPIRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Sprites holds the image links of a detail document.
type Sprites struct {
	FrontDefault *string `json:"front_default"`
}
