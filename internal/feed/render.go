// Package feed renders GitHub activity into RSS 2.0 documents.
package feed

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/0x0BSoD/repofeed/internal/model"
)

// MaxItems is the number of most recent items kept in a feed.
const MaxItems = 20

// TimeFormat is the RFC 2822 UTC form used for pubDate and lastBuildDate.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type cdata struct {
	Text string `xml:",cdata"`
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         cdata     `xml:"title"`
	Link          string    `xml:"link"`
	Description   cdata     `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       cdata  `xml:"title"`
	Link        string `xml:"link"`
	Description cdata  `xml:"description"`
	PubDate     string `xml:"pubDate,omitempty"`
	GUID        string `xml:"guid"`
}

// Render builds the RSS document for one feed type of a repository. The
// output depends only on its arguments; builtAt becomes lastBuildDate.
func Render(id model.Identity, feedType model.FeedType, items []model.Item, builtAt time.Time) (string, error) {
	feedItems := lo.Map(items, func(it model.Item, _ int) model.FeedItem {
		return Normalize(feedType, it)
	})

	slices.SortStableFunc(feedItems, func(a, b model.FeedItem) int {
		return b.Date.Compare(a.Date)
	})
	if len(feedItems) > MaxItems {
		feedItems = feedItems[:MaxItems]
	}

	doc := rssDocument{
		Version: "2.0",
		Channel: rssChannel{
			Title:         cdata{fmt.Sprintf("%s - %s", id, feedType.Title())},
			Link:          id.URL(),
			Description:   cdata{fmt.Sprintf("RSS feed for %s in %s", feedType, id)},
			LastBuildDate: builtAt.UTC().Format(TimeFormat),
			Items: lo.Map(feedItems, func(it model.FeedItem, _ int) rssItem {
				return rssItem{
					Title:       cdata{it.Title},
					Link:        it.Link,
					Description: cdata{it.Description},
					PubDate:     formatDate(it.Date),
					GUID:        it.Link,
				}
			}),
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render %s feed of %s: %w", feedType, id, err)
	}

	return xml.Header + string(out) + "\n", nil
}

// Normalize maps a raw GitHub item of the given feed type to a FeedItem.
func Normalize(feedType model.FeedType, it model.Item) model.FeedItem {
	fi := model.FeedItem{
		Link: it.HTMLURL,
		Date: lo.FromPtr(it.CreatedAt),
	}

	description := it.Body
	switch feedType {
	case model.FeedIssues:
		fi.Title = "Issue #" + strconv.Itoa(it.Number) + ": " + it.Title
	case model.FeedPullRequests:
		fi.Title = "Pull Request #" + strconv.Itoa(it.Number) + ": " + it.Title
	case model.FeedDiscussions:
		fi.Title = lo.Ternary(it.Title != "", it.Title, "Discussion #"+strconv.Itoa(it.Number))
	case model.FeedReleases:
		fi.Title = "Release " + it.TagName + ": " + lo.Ternary(it.Name != "", it.Name, it.TagName)
		if it.PublishedAt != nil {
			fi.Date = *it.PublishedAt
		}
		if description == "" {
			description = "No release notes provided"
		}
	}

	if description == "" {
		description = "No description provided"
	}
	fi.Title = XMLText(fi.Title)
	fi.Description = CleanDescription(description)

	return fi
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}
