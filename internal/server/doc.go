// Package server provides the local HTTP listener used to complete sign-in.
//
// # Router
//
// [BasicRouter] wraps [http.ServeMux] with method-qualified patterns and a [Middleware] stack.
// Middleware wraps in reverse order, so the first one added sees the request first.
//
// # OAuth Callback
//
// [OAuthHandler] receives the Music Service authorization redirect, checks the state parameter
// against the value minted for this attempt and hands the code to an [Exchanger]. The client
// secret never reaches the device: the exchanger is the backend-backed token manager.
//
// Only the first callback is processed. Later hits get 400 so a replayed redirect cannot
// overwrite the session.
//
// [Await] serves the handler on a listener until a result arrives, the context ends or the
// timeout elapses, then shuts the listener down.
package server
