package dnsmgr

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// verifyQuestion is a name every public resolver can answer.
const verifyQuestion = "example.com."

// VerifyServer sends a single A query directly to the given server and
// checks that it answers at all. It confirms the server speaks DNS, not
// that the reply is correct.
func VerifyServer(addr netip.Addr, timeout time.Duration) error {
	client := &dns.Client{Timeout: timeout}

	msg := new(dns.Msg)
	msg.SetQuestion(verifyQuestion, dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := client.Exchange(msg, net.JoinHostPort(addr.String(), "53"))
	if err != nil {
		return fmt.Errorf("query %s: %w", addr, err)
	}
	if resp == nil {
		return fmt.Errorf("query %s: empty response", addr)
	}
	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return fmt.Errorf("query %s: rcode %s", addr, dns.RcodeToString[resp.Rcode])
	}
	return nil
}
