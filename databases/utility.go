package databases

import "go.mongodb.org/mongo-driver/mongo/options"

// paginateOpts converts 1-based page/limit values from the admin listing
// endpoints into mongo find options.
func paginateOpts(limit, page int) *options.FindOptions {
	l := int64(limit)
	skip := int64(page)*l - l
	return &options.FindOptions{Limit: &l, Skip: &skip}
}
