// Package types holds the value objects shared by managers, controllers and
// storage: page requests, paged data, operation results, message templates
// and the model contracts (identifiable, soft-removable, trackable).
package types
