package redditclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/reddit-fleet/controller/internal/models"
)

// MoreSet is one "load more comments" placeholder discovered while walking
// a comment tree: the IDs listed under it still need a morechildren call.
type MoreSet struct {
	ParentID   string
	ParentType models.ParentType
	CommentIDs []string
	Depth      int
}

// rawChild mirrors one Reddit "Thing" wrapper: {kind, data}.
type rawChild struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type rawPostData struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	Author        string  `json:"author"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	Subreddit     string  `json:"subreddit"`
	LinkFlairText string  `json:"link_flair_text"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
}

type rawCommentData struct {
	ID         string          `json:"id"`
	ParentID   string          `json:"parent_id"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"`
	Children   []string        `json:"children"`
}

// ParseListing decodes one subreddit/search listing page into posts plus
// the "after" pagination cursor, grounded on parser.go's ParseSubreddit.
func ParseListing(data json.RawMessage, subreddit, sortMethod string) ([]models.Post, string, error) {
	var listing struct {
		Data struct {
			Children []rawChild `json:"children"`
			After    string     `json:"after"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, "", fmt.Errorf("parse listing JSON: %w", err)
	}

	var posts []models.Post
	now := time.Now().UTC()
	for _, child := range listing.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var pd rawPostData
		if err := json.Unmarshal(child.Data, &pd); err != nil {
			continue
		}

		sr := pd.Subreddit
		if sr == "" {
			sr = subreddit
		}
		posts = append(posts, models.Post{
			PostID:      pd.ID,
			Subreddit:   sr,
			Author:      pd.Author,
			Title:       pd.Title,
			Body:        pd.Selftext,
			Score:       pd.Score,
			NumComments: pd.NumComments,
			URL:         "https://reddit.com" + pd.Permalink,
			Flair:       pd.LinkFlairText,
			SortMethod:  sortMethod,
			CreatedUTC:  time.Unix(int64(pd.CreatedUTC), 0).UTC(),
			ScrapedAt:   now,
		})
	}
	return posts, listing.Data.After, nil
}

// DiscoveredSubreddit is one "t5" (subreddit) search hit, grounded on the
// same community-descriptor fields GetSubredditAboutURL populates.
type DiscoveredSubreddit struct {
	Name               string
	Title              string
	PublicDescription  string
	AdvertiserCategory string
	Subscribers        int
}

type rawSubredditData struct {
	DisplayName        string `json:"display_name"`
	Title              string `json:"title"`
	PublicDescription  string `json:"public_description"`
	AdvertiserCategory string `json:"advertiser_category"`
	Subscribers        int    `json:"subscribers"`
}

// ParseSubredditSearch decodes a /subreddits/search.json listing ("t5"
// children) into discovered-subreddit rows.
func ParseSubredditSearch(data json.RawMessage) ([]DiscoveredSubreddit, error) {
	var listing struct {
		Data struct {
			Children []rawChild `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("parse subreddit search JSON: %w", err)
	}

	var out []DiscoveredSubreddit
	for _, child := range listing.Data.Children {
		if child.Kind != "t5" {
			continue
		}
		var sd rawSubredditData
		if err := json.Unmarshal(child.Data, &sd); err != nil {
			continue
		}
		out = append(out, DiscoveredSubreddit{
			Name:               sd.DisplayName,
			Title:              sd.Title,
			PublicDescription:  sd.PublicDescription,
			AdvertiserCategory: sd.AdvertiserCategory,
			Subscribers:        sd.Subscribers,
		})
	}
	return out, nil
}

// ParsePostAndComments decodes the 2-element [post-listing, comment-listing]
// response from GetPostURL into the post plus a flattened comment slice and
// any "load more" sets discovered, grounded on parser.go's ParsePost /
// parseCommentsTree / processComments.
func ParsePostAndComments(raw json.RawMessage, subreddit string) (models.Post, []models.Comment, []MoreSet, error) {
	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil || len(blocks) < 2 {
		return models.Post{}, nil, nil, fmt.Errorf("invalid post JSON format: %w", err)
	}

	var postBlock struct {
		Data struct {
			Children []rawChild `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(blocks[0], &postBlock); err != nil {
		return models.Post{}, nil, nil, fmt.Errorf("parse post JSON: %w", err)
	}
	if len(postBlock.Data.Children) == 0 {
		return models.Post{}, nil, nil, fmt.Errorf("post not found in response")
	}

	var pd rawPostData
	if err := json.Unmarshal(postBlock.Data.Children[0].Data, &pd); err != nil {
		return models.Post{}, nil, nil, fmt.Errorf("parse post data: %w", err)
	}

	now := time.Now().UTC()
	post := models.Post{
		PostID:      pd.ID,
		Subreddit:   subreddit,
		Author:      pd.Author,
		Title:       pd.Title,
		Body:        pd.Selftext,
		Score:       pd.Score,
		NumComments: pd.NumComments,
		URL:         "https://reddit.com" + pd.Permalink,
		Flair:       pd.LinkFlairText,
		CreatedUTC:  time.Unix(int64(pd.CreatedUTC), 0).UTC(),
		ScrapedAt:   now,
	}

	var commentsBlock struct {
		Data struct {
			Children []rawChild `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(blocks[1], &commentsBlock); err != nil {
		return post, nil, nil, fmt.Errorf("parse comments JSON: %w", err)
	}

	comments, moreSets := flattenComments(commentsBlock.Data.Children, post.PostID, models.ParentTypePost, post.PostID, 0)
	return post, comments, moreSets, nil
}

// ParseMoreComments decodes an /api/morechildren response into the flattened
// comments it contains, grounded on parser.go's ParseMoreComments.
func ParseMoreComments(data json.RawMessage, postID string) ([]models.Comment, []MoreSet, error) {
	var wrapper struct {
		JSON struct {
			Data struct {
				Things []rawChild `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		var direct []rawChild
		if err2 := json.Unmarshal(data, &direct); err2 == nil {
			return flattenComments(direct, postID, models.ParentTypePost, postID, 0)
		}
		return nil, nil, fmt.Errorf("parse more comments JSON: %w", err)
	}
	return flattenComments(wrapper.JSON.Data.Things, postID, models.ParentTypePost, postID, 0)
}

// flattenComments walks a "things" array, emitting flat models.Comment rows
// (with ParentID/Depth set) and collecting every "more" placeholder as a
// MoreSet for the scraper's comment-expansion worker pool to resolve.
func flattenComments(children []rawChild, postID string, parentType models.ParentType, parentID string, depth int) ([]models.Comment, []MoreSet) {
	var comments []models.Comment
	var moreSets []MoreSet

	for _, child := range children {
		switch child.Kind {
		case "t1":
			var cd rawCommentData
			if err := json.Unmarshal(child.Data, &cd); err != nil {
				continue
			}
			comments = append(comments, models.Comment{
				CommentID:  cd.ID,
				PostID:     postID,
				ParentID:   parentID,
				ParentType: parentType,
				Author:     cd.Author,
				Body:       cd.Body,
				Score:      cd.Score,
				Depth:      depth,
				CreatedUTC: time.Unix(int64(cd.CreatedUTC), 0).UTC(),
				ScrapedAt:  time.Now().UTC(),
			})

			if len(cd.Replies) > 0 && string(cd.Replies) != "\"\"" {
				var repliesBlock struct {
					Data struct {
						Children []rawChild `json:"children"`
					} `json:"data"`
				}
				if err := json.Unmarshal(cd.Replies, &repliesBlock); err == nil {
					childComments, childMore := flattenComments(repliesBlock.Data.Children, postID, models.ParentTypeComment, cd.ID, depth+1)
					comments = append(comments, childComments...)
					moreSets = append(moreSets, childMore...)
				}
			}

		case "more":
			var md struct {
				ParentID string   `json:"parent_id"`
				Children []string `json:"children"`
			}
			if err := json.Unmarshal(child.Data, &md); err != nil {
				continue
			}
			var ids []string
			for _, id := range md.Children {
				if id != "continue" {
					ids = append(ids, id)
				}
			}
			if len(ids) > 0 {
				moreSets = append(moreSets, MoreSet{
					ParentID:   parentID,
					ParentType: parentType,
					CommentIDs: ids,
					Depth:      depth,
				})
			}
		}
	}

	return comments, moreSets
}
