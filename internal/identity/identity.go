// Package identity implements the connection registry: the authentication
// gate and the binding between live transport connections and display-name
// identities. An identity is just a display name; two connections bound to
// the same name are the same participant for presence purposes (multi-tab),
// while remaining distinct connections for routing.
package identity
