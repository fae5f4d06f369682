package utils

import "io"

// DrainAndClose empties and closes an HTTP response body. Leaving bytes
// unread prevents the transport from reusing the connection.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	if _, err := io.Copy(io.Discard, rc); err != nil {
		_ = rc.Close()
		return err
	}
	return rc.Close()
}
