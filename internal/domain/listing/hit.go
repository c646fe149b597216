package listing

// Hit is a search result: a listing plus its similarity score.
// Native index hits carry the score the index reports (cosine similarity for
// a cosine index); brute-force hits carry exact cosine similarity.
type Hit struct {
	Listing Listing
	Score   float64
}
