package pairing

import (
	"net"
	"net/url"
	"strconv"
)

// BuildDescriptor renders the URL a peer connects to for pairing.
func BuildDescriptor(host string, port int, code string) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("v", strconv.Itoa(ProtocolVersion))
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/pair",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// advertiseHost picks the address peers on the LAN should dial.
func advertiseHost(configured string, listener net.Addr) string {
	if configured != "" {
		return configured
	}
	if tcp, ok := listener.(*net.TCPAddr); ok && tcp.IP != nil && !tcp.IP.IsUnspecified() {
		return tcp.IP.String()
	}
	if ip := firstLANAddress(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

func firstLANAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
