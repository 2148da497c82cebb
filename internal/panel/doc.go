// Package panel serves the mixer surface and the admin page as embedded
// assets.
//
// The pages are plain HTML and JavaScript built into the binary with
// go:embed, so the server has no runtime dependency on external files.
// Setting server.static_dir serves them from disk instead, for editing the
// pages without a rebuild. Unknown paths fall back to index.html.
//
// Cache-control is no-cache on every asset; the pages are small and must
// pick up a new layout as soon as the admin page closes the clients.
package panel
