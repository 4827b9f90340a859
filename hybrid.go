package boss

// HybridDialer dials "localhost" targets with Local and everything else
// with Remote.
type HybridDialer struct {
	Remote Dialer
	Local  Dialer
}

func (d HybridDialer) Dial(host, user string) (Conn, error) {
	if host == "localhost" {
		local := d.Local
		if local == nil {
			local = LocalDialer{}
		}
		return local.Dial(host, user)
	}
	return d.Remote.Dial(host, user)
}
