package youtube

// Wire shapes for the Data API responses. Counts arrive as decimal strings.

type searchResponse struct {
	Items []struct {
		Snippet struct {
			ChannelID string `json:"channelId"`
		} `json:"snippet"`
	} `json:"items"`
}

type channelListResponse struct {
	Items []struct {
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			CustomURL   string `json:"customUrl"`
			Country     string `json:"country"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
			ViewCount       string `json:"viewCount"`
		} `json:"statistics"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
		TopicDetails struct {
			TopicCategories []string `json:"topicCategories"`
		} `json:"topicDetails"`
		Status struct {
			PrivacyStatus string `json:"privacyStatus"`
			MadeForKids   bool   `json:"madeForKids"`
		} `json:"status"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Tags       []string `json:"tags"`
			CategoryID string   `json:"categoryId"`
		} `json:"snippet"`
		Statistics struct {
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
			ViewCount    string `json:"viewCount"`
		} `json:"statistics"`
		ContentDetails struct {
			Duration   string `json:"duration"`
			Definition string `json:"definition"`
		} `json:"contentDetails"`
		Status struct {
			License     string `json:"license"`
			MadeForKids bool   `json:"madeForKids"`
		} `json:"status"`
	} `json:"items"`
}
