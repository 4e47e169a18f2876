// Package upload validates and stores media attached to listings and posts.
//
// Uploads go over plain HTTP rather than the change feed: the client POSTs a
// multipart form to the upload handler, the file is checked against a Config
// (size and detected content type), written to a Store, and the handler
// returns a temp_id. The id is then attached to the row that references the
// file.
//
// Two stores are provided: DiskStore for single-node deployments and tests,
// and S3Store for any S3-compatible object storage.
//
// Validation runs before anything is written. Validate can also be called on
// the client side so that an oversized or disallowed file is rejected before
// any remote call is made.
package upload
