package broadcast

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestDeliverNeverBlocks(t *testing.T) {
	h := NewHub(testLogger())

	// nothing drains the hub here; overflow must be dropped, not block
	for i := 0; i < cap(h.deleted)+10; i++ {
		h.Deliver(DeletedPost{Text: "x"})
	}
}

func TestFanoutFiltersByInterest(t *testing.T) {
	h := NewHub(testLogger())

	english := NewClient(h, nil, []*string{str("en")}, testLogger())
	everything := NewClient(h, nil, nil, testLogger())
	h.clients[english] = true
	h.clients[everything] = true

	h.fanout(DeletedPost{Text: "tchau", Langs: []string{"pt"}, Age: 1234})

	if len(english.send) != 0 {
		t.Error("post delivered to uninterested subscriber")
	}
	if len(everything.send) != 1 {
		t.Fatal("post not delivered to unfiltered subscriber")
	}

	var msg postMessage
	if err := json.Unmarshal(<-everything.send, &msg); err != nil {
		t.Fatalf("unmarshal delivered frame: %v", err)
	}
	if msg.Type != "post" || msg.Post.Value.Text != "tchau" || msg.Post.Age != 1234 {
		t.Errorf("delivered frame = %+v", msg)
	}
	if msg.Post.Likes != nil {
		t.Errorf("Likes = %v, want null when unknown", *msg.Post.Likes)
	}
}

func TestFanoutSkipsSaturatedSubscriber(t *testing.T) {
	h := NewHub(testLogger())

	c := NewClient(h, nil, nil, testLogger())
	h.clients[c] = true
	for len(c.send) < cap(c.send) {
		c.send <- []byte("backlog")
	}

	// must not block even though the subscriber cannot take more
	h.fanout(DeletedPost{Text: "x"})

	if len(c.send) != cap(c.send) {
		t.Error("saturated subscriber buffer changed")
	}
}

func TestPostMessageWireFormat(t *testing.T) {
	likes := uint32(3)
	data, err := json.Marshal(postMessage{
		Type: "post",
		Post: postBody{
			Value: postValue{Text: "bye", Langs: []string{"en"}, Target: "reply"},
			Age:   500,
			Likes: &likes,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := `{"type":"post","post":{"value":{"text":"bye","langs":["en"],"target":"reply"},"age":500,"likes":3}}`
	if string(data) != want {
		t.Errorf("frame = %s, want %s", data, want)
	}
}
