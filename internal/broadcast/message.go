package broadcast

// DeletedPost is a correlated deletion handed off by the ingestion side:
// the post's last-known content plus how long it lived, in milliseconds of
// logical time. Likes is nil when the count could not be fetched.
type DeletedPost struct {
	Text   string
	Langs  []string
	Target string
	Age    int64
	Likes  *uint32
}

// postValue is the content part of an outbound post message.
type postValue struct {
	Text   string   `json:"text"`
	Langs  []string `json:"langs,omitempty"`
	Target string   `json:"target,omitempty"`
}

type postBody struct {
	Value postValue `json:"value"`
	Age   int64     `json:"age"`
	Likes *uint32   `json:"likes"`
}

// postMessage is the frame subscribers receive for each deleted post.
type postMessage struct {
	Type string   `json:"type"`
	Post postBody `json:"post"`
}

// observersMessage tells subscribers how many observers are connected.
type observersMessage struct {
	Type      string `json:"type"`
	Observers int    `json:"observers"`
}

// controlMessage is the only inbound frame subscribers may send. Langs
// entries are nullable; null selects posts with no language tag.
type controlMessage struct {
	Type  string    `json:"type"`
	Langs []*string `json:"langs"`
}
