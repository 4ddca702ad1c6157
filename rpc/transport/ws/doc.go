// Package ws implements the websocket transport using gorilla/websocket.
// The listener runs an http server that upgrades requests on Path, every
// envelope travels as one binary message. It is meant for peers that cannot
// open raw sockets (browsers, proxies).
package ws
