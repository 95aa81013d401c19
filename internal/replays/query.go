// Package replays serves the number of distinct replays linked to each of a
// set of issues.
package replays

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxIssueIDs is the largest number of issues one request may ask for.
	MaxIssueIDs = 25
	// MaxReplayCount caps the count reported per issue.
	MaxReplayCount = 51
)

const (
	detailNoIssueIDs       = "Must provide at least one issue id"
	detailTooManyIssueIDs  = "Too many issues ids provided"
	issueIDFilterPrefix    = "issue.id:"
	detailMalformedIssueID = "Invalid issue id"
)

// ParamError is a client error with a fixed detail message.
type ParamError struct {
	Detail string
}

func (e *ParamError) Error() string { return e.Detail }

// ParseIssueIDs extracts the issue ids of an "issue.id:[1, 2]" or
// "issue.id:1" search filter. The size limit applies to the ids as given;
// duplicates are collapsed afterwards.
func ParseIssueIDs(query string) ([]int64, error) {
	raw, err := issueIDTokens(query)
	if err != nil {
		return nil, err
	}

	switch {
	case len(raw) == 0:
		return nil, &ParamError{Detail: detailNoIssueIDs}
	case len(raw) > MaxIssueIDs:
		return nil, &ParamError{Detail: detailTooManyIssueIDs}
	}

	seen := make(map[int64]struct{}, len(raw))
	ids := make([]int64, 0, len(raw))
	for _, tok := range raw {
		id, err := strconv.ParseInt(tok, 10, 64)
		if err != nil || id < 0 {
			return nil, &ParamError{Detail: fmt.Sprintf("%s: %q", detailMalformedIssueID, tok)}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func issueIDTokens(query string) ([]string, error) {
	idx := strings.Index(query, issueIDFilterPrefix)
	if idx < 0 {
		return nil, nil
	}
	rest := strings.TrimSpace(query[idx+len(issueIDFilterPrefix):])

	if !strings.HasPrefix(rest, "[") {
		if end := strings.IndexAny(rest, " \t"); end >= 0 {
			rest = rest[:end]
		}
		if rest == "" {
			return nil, nil
		}
		return []string{rest}, nil
	}

	end := strings.Index(rest, "]")
	if end < 0 {
		return nil, &ParamError{Detail: detailMalformedIssueID + ": unterminated list"}
	}
	var out []string
	for _, part := range strings.Split(rest[1:end], ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
