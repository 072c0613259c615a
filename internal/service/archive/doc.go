// Package archive stores saved newsletters when this process owns
// persistence instead of the base API.
//
// The service validates documents and adapts the Repository contract to the
// workflow's code-returning Persister. Repository implementations live in
// repository/postgres/ and repository/dynamo/.
package archive
