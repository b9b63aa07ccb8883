package diagnostics_test

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dramsim/internal/diagnostics"
)

type fakeController struct{}

func (fakeController) SummaryText() string { return "channels=1 channel_width=8B\n" }

func (fakeController) ChannelStats(name string) (string, bool) {
	if name != "Channel 0" {
		return "", false
	}
	return "sim: {...}\n", true
}

func (fakeController) PrintDeadlock(w io.Writer) {
	fmt.Fprint(w, "Channel 0:\n  WQ[0] = (0x40, false, false)\n")
}

var _ = Describe("Server", func() {
	var addr string

	BeforeEach(func() {
		s := diagnostics.NewServer(fakeController{}).WithPortNumber(0)

		var err error
		addr, err = s.Start()
		Expect(err).NotTo(HaveOccurred())
	})

	It("serves the topology summary", func() {
		resp, err := http.Get("http://" + addr + "/summary")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("serves a known channel's stats", func() {
		resp, err := http.Get("http://" + addr + "/stats/" + url.PathEscape("Channel 0"))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("404s for an unknown channel", func() {
		resp, err := http.Get("http://" + addr + "/stats/" + url.PathEscape("Channel 9"))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("serves the deadlock dump", func() {
		resp, err := http.Get("http://" + addr + "/deadlock")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})
})
