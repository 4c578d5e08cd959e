package gbp

import "encoding/json"

// Wire models for the Business Profile API. Only the fields the engine
// depends on are decoded; everything else is ignored at the boundary.

type locationsResponse struct {
	Locations     []apiLocation `json:"locations"`
	NextPageToken string        `json:"nextPageToken"`
}

type apiLocation struct {
	Name         string      `json:"name"` // "accounts/{a}/locations/{l}"
	Title        string      `json:"title"`
	PrimaryPhone *string     `json:"primaryPhone"`
	WebsiteURI   *string     `json:"websiteUri"`
	Address      *apiAddress `json:"storefrontAddress"`
}

type apiAddress struct {
	AddressLines []string `json:"addressLines"`
	Locality     string   `json:"locality"`
	PostalCode   string   `json:"postalCode"`
}

type reviewsResponse struct {
	Reviews       []apiReview `json:"reviews"`
	NextPageToken string      `json:"nextPageToken"`
}

type apiReview struct {
	Name       string     `json:"name"` // ".../reviews/{r}"
	Reviewer   apiAuthor  `json:"reviewer"`
	StarRating json.RawMessage `json:"starRating"` // number, "STAR_FOUR", or digit text
	Comment    *string    `json:"comment"`
	CreateTime string     `json:"createTime"`
	UpdateTime string     `json:"updateTime"`
	Reply      *apiReply  `json:"reviewReply"`
}

type apiAuthor struct {
	DisplayName string `json:"displayName"`
}

type apiReply struct {
	Comment string `json:"comment"`
}

type questionsResponse struct {
	Questions     []apiQuestion `json:"questions"`
	NextPageToken string        `json:"nextPageToken"`
}

type apiQuestion struct {
	Name       string     `json:"name"` // ".../questions/{q}"
	Author     apiAuthor  `json:"author"`
	Text       string     `json:"text"`
	TopAnswer  *apiAnswer `json:"topAnswer"`
	CreateTime string     `json:"createTime"`
}

type apiAnswer struct {
	Text string `json:"text"`
}
