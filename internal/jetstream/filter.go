package jetstream

import (
	"github.com/calbers/lastwords/internal/langs"
)

// Target classifies what a post was aimed at: a reply parent, a quoted
// record, or nothing.
type Target string

const (
	TargetNone  Target = ""
	TargetReply Target = "reply"
	TargetQuote Target = "quote"
)

// Op is the normalized operation kind.
type Op int

const (
	OpPost Op = iota + 1
	OpUpdate
	OpDelete
)

// Message is a normalized post event. T is the event time truncated to
// milliseconds; it is a logical sequence marker, not a wall clock, and is not
// monotonic across reconnects. Text and Langs are empty for OpDelete.
type Message struct {
	Op     Op
	T      int64
	DID    string
	RKey   string
	Langs  []string
	Text   string
	Target Target
}

// Filter normalizes a raw Jetstream event. It returns nil when the event
// produces nothing: non-commit kinds, other collections, unknown operations,
// and creates whose text is empty (an empty post is not content). An update
// whose text became empty normalizes to a delete; emptying the text is the
// application's soft-delete convention.
func Filter(evt *Event) *Message {
	if evt == nil || evt.Kind != "commit" || evt.Commit == nil {
		return nil
	}
	commit := evt.Commit
	if commit.Collection != postCollection {
		return nil
	}

	t := evt.TimeUS / 1000

	switch commit.Operation {
	case "create", "update":
		rec := commit.Record
		if rec == nil {
			return nil
		}
		if rec.Text == "" {
			if commit.Operation == "create" {
				return nil
			}
			return &Message{Op: OpDelete, T: t, DID: evt.DID, RKey: commit.RKey}
		}

		op := OpPost
		if commit.Operation == "update" {
			op = OpUpdate
		}

		return &Message{
			Op:     op,
			T:      t,
			DID:    evt.DID,
			RKey:   commit.RKey,
			Langs:  langs.Normalize(rec.Langs),
			Text:   Redact(rec.Text, rec.Facets),
			Target: classifyTarget(rec),
		}

	case "delete":
		return &Message{Op: OpDelete, T: t, DID: evt.DID, RKey: commit.RKey}

	default:
		return nil
	}
}

// classifyTarget prefers reply over quote; upstream should never set both on
// one record, but if it does the reply parent wins.
func classifyTarget(rec *PostRecord) Target {
	if rec.Reply != nil {
		return TargetReply
	}
	if rec.Embed != nil && rec.Embed.Type == embedRecord {
		return TargetQuote
	}
	return TargetNone
}
