// Package controller mounts managers on fiber routes: paged reads under
// /api/{name}, writes and bulk writes, xlsx export, soft-delete routes and
// file storage under /api/files/:source.
package controller
