package redditclient_test

import (
	"encoding/json"
	"testing"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/redditclient"
)

func TestParseListingExtractsPostsAndCursor(t *testing.T) {
	data := json.RawMessage(`{
		"data": {
			"children": [
				{
					"kind": "t3",
					"data": {
						"id": "abc123",
						"title": "Test post",
						"selftext": "body text",
						"author": "testuser",
						"score": 42,
						"num_comments": 3,
						"created_utc": 1620000000,
						"subreddit": "golang",
						"permalink": "/r/golang/comments/abc123/test_post"
					}
				}
			],
			"after": "t3_next123"
		}
	}`)

	posts, after, err := redditclient.ParseListing(data, "golang", "hot")
	if err != nil {
		t.Fatalf("ParseListing returned error: %v", err)
	}
	if after != "t3_next123" {
		t.Errorf("expected pagination cursor 't3_next123', got %q", after)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].PostID != "abc123" {
		t.Errorf("expected post ID 'abc123', got %q", posts[0].PostID)
	}
	if posts[0].SortMethod != "hot" {
		t.Errorf("expected sort method 'hot' on every harvested post, got %q", posts[0].SortMethod)
	}
}

func TestParseListingSkipsNonPostChildren(t *testing.T) {
	data := json.RawMessage(`{"data":{"children":[{"kind":"t1","data":{}}],"after":""}}`)
	posts, _, err := redditclient.ParseListing(data, "golang", "new")
	if err != nil {
		t.Fatalf("ParseListing returned error: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("expected comment children to be skipped, got %d posts", len(posts))
	}
}

func TestParsePostAndCommentsFlattensNestedReplies(t *testing.T) {
	raw := json.RawMessage(`[
		{"data":{"children":[{"kind":"t3","data":{"id":"p1","title":"Root post","author":"op","score":10,"num_comments":2,"created_utc":1620000000}}]}},
		{"data":{"children":[
			{"kind":"t1","data":{
				"id":"c1","author":"alice","body":"top level","score":5,"created_utc":1620000100,
				"replies":{"data":{"children":[
					{"kind":"t1","data":{"id":"c2","author":"bob","body":"a reply","score":2,"created_utc":1620000200,"replies":""}}
				]}}
			}},
			{"kind":"more","data":{"parent_id":"t3_p1","children":["c3","c4"]}}
		]}}
	]`)

	post, comments, more, err := redditclient.ParsePostAndComments(raw, "golang")
	if err != nil {
		t.Fatalf("ParsePostAndComments returned error: %v", err)
	}
	if post.PostID != "p1" {
		t.Errorf("expected post ID 'p1', got %q", post.PostID)
	}

	if len(comments) != 2 {
		t.Fatalf("expected 2 flattened comments, got %d", len(comments))
	}

	var top, reply *models.Comment
	for i := range comments {
		switch comments[i].CommentID {
		case "c1":
			top = &comments[i]
		case "c2":
			reply = &comments[i]
		}
	}
	if top == nil || reply == nil {
		t.Fatalf("expected both c1 and c2 in flattened output, got %+v", comments)
	}
	if top.Depth != 0 || top.ParentID != "p1" || top.ParentType != models.ParentTypePost {
		t.Errorf("expected c1 to be a direct post child at depth 0, got parent=%s type=%s depth=%d", top.ParentID, top.ParentType, top.Depth)
	}
	if reply.Depth != 1 || reply.ParentID != "c1" || reply.ParentType != models.ParentTypeComment {
		t.Errorf("expected c2 to be parented under c1 at depth 1, got parent=%s type=%s depth=%d", reply.ParentID, reply.ParentType, reply.Depth)
	}

	if len(more) != 1 || len(more[0].CommentIDs) != 2 {
		t.Fatalf("expected one more-set with 2 IDs, got %+v", more)
	}
}

func TestParseMoreCommentsHandlesJSONEnvelope(t *testing.T) {
	data := json.RawMessage(`{
		"json": {
			"data": {
				"things": [
					{"kind":"t1","data":{"id":"c9","author":"carol","body":"expanded","score":1,"created_utc":1620000300,"replies":""}}
				]
			}
		}
	}`)

	comments, more, err := redditclient.ParseMoreComments(data, "p1")
	if err != nil {
		t.Fatalf("ParseMoreComments returned error: %v", err)
	}
	if len(comments) != 1 || comments[0].CommentID != "c9" {
		t.Fatalf("expected comment c9, got %+v", comments)
	}
	if len(more) != 0 {
		t.Errorf("expected no further more-sets, got %d", len(more))
	}
}
