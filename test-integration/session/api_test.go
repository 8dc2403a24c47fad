package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v0 "github.com/pinehappi/argon/internal/api/v0"
	"github.com/pinehappi/argon/internal/classdb"
	"github.com/pinehappi/argon/internal/config"
	"github.com/pinehappi/argon/internal/service"
	"github.com/pinehappi/argon/internal/status"
	"github.com/pinehappi/argon/test-integration/session/helpers"
)

var _ = Describe("API source session", func() {
	var (
		workspace string
		roblox    *helpers.MockRobloxServer
		session   *helpers.SessionTestHelper
	)

	BeforeEach(func() {
		workspace = GinkgoT().TempDir()
		roblox = helpers.NewMockRobloxServer("0.650.0.1", "Part", "Script", "Model")
		helpers.WriteConfigYAML(workspace, helpers.APISourceConfig(roblox))
	})

	AfterEach(func() {
		if session != nil {
			Expect(session.StopSession()).To(Succeed())
		}
		roblox.Close()
	})

	start := func() {
		session = helpers.NewSessionTestHelper(ctx, workspace)
		Expect(session.StartSession()).To(Succeed())
		session.WaitForSessionReady(10 * time.Second)
	}

	listClasses := func() []string {
		var resp v0.ClassesResponse
		Expect(session.GetJSON("/classes", &resp)).To(Equal(http.StatusOK))
		return resp.Classes
	}

	Context("with an empty workspace", func() {
		It("fills the class database from the remote on start", func() {
			start()

			Expect(session.Codes()).To(Equal([]status.Code{status.CodeUpdated, status.CodeStarted}))
			Expect(listClasses()).To(Equal([]string{"Model", "Part", "Script"}))
			Expect(roblox.DumpRequests()).To(Equal(1))

			var details service.Details
			Expect(session.GetJSON("/details", &details)).To(Equal(http.StatusOK))
			Expect(details.Source).To(Equal(classdb.SourceRemoteSynced))
			Expect(details.Marker.Version).To(Equal("0.650.0.1"))
			Expect(details.Phase).To(Equal("running"))
			Expect(details.LastSync).NotTo(BeNil())
			Expect(details.LastSync.LastOutcome).To(Equal(status.CodeUpdated))

			cacheDir := filepath.Join(workspace, config.DefaultCacheDirName)
			Expect(filepath.Join(cacheDir, status.StatusFileName)).To(BeAnExistingFile())
			entries, err := os.ReadDir(cacheDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(entries)).To(BeNumerically(">=", 2))
		})
	})

	Context("with a fresh cache", func() {
		BeforeEach(func() {
			start()
			Expect(session.StopSession()).To(Succeed())
			session = nil
		})

		It("restores the cache without contacting the remote", func() {
			start()

			Expect(session.Codes()).To(Equal([]status.Code{status.CodeStarted}))
			Expect(listClasses()).To(Equal([]string{"Model", "Part", "Script"}))
			Expect(roblox.DumpRequests()).To(Equal(1))
		})

		It("picks up a new client version on a forced refresh", func() {
			start()
			roblox.Publish("0.651.0.1", "Part", "Script", "Model", "Beam")

			var resp v0.RefreshResponse
			Expect(session.PostJSON("/classes/refresh?force=true", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Code).To(Equal(status.CodeUpdated))
			Expect(resp.Reason).To(Equal("manual-sync"))
			Expect(resp.Version).To(Equal("0.651.0.1"))
			Expect(listClasses()).To(ContainElement("Beam"))
			Expect(session.Codes()).To(ContainElement(status.CodeUpdated))
		})

		It("reports an up to date database on a plain refresh", func() {
			start()

			var resp v0.RefreshResponse
			Expect(session.PostJSON("/classes/refresh", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Code).To(Equal(status.CodeAlreadyCurrent))
			Expect(session.Codes()).To(Equal([]status.Code{status.CodeStarted, status.CodeAlreadyCurrent}))
		})

		It("keeps the table when the remote is unreachable", func() {
			start()
			roblox.SetFailing(true)

			var resp v0.RefreshResponse
			Expect(session.PostJSON("/classes/refresh?force=true", &resp)).To(Equal(http.StatusBadGateway))
			Expect(resp.Code).To(Equal(status.CodeConnectionFailed))
			Expect(listClasses()).To(Equal([]string{"Model", "Part", "Script"}))

			var details service.Details
			Expect(session.GetJSON("/details", &details)).To(Equal(http.StatusOK))
			Expect(details.Marker.Version).To(Equal("0.650.0.1"))
			Expect(details.LastSync.Phase).To(Equal(status.SyncPhaseFailed))
		})
	})

	Context("with an expired cache and an unchanged remote", func() {
		BeforeEach(func() {
			cfg := helpers.APISourceConfig(roblox)
			cfg["syncPolicy"] = map[string]any{"maxAge": "1ms"}
			helpers.WriteConfigYAML(workspace, cfg)

			start()
			Expect(session.StopSession()).To(Succeed())
			session = nil
		})

		It("only checks the version", func() {
			versionChecks := roblox.VersionRequests()
			start()

			Expect(session.Codes()).To(Equal([]status.Code{status.CodeStarted}))
			Expect(roblox.DumpRequests()).To(Equal(1))
			Expect(roblox.VersionRequests()).To(BeNumerically(">", versionChecks))
		})
	})

	Context("stopping", func() {
		It("stops through the API and rejects a second stop", func() {
			start()

			var resp v0.StopResponse
			Expect(session.PostJSON("/stop", &resp)).To(Equal(http.StatusOK))
			Expect(resp.Code).To(Equal(status.CodeStopped))
			Eventually(session.App().Done()).Should(BeClosed())

			Expect(session.PostJSON("/stop", &resp)).To(Equal(http.StatusConflict))
			Expect(resp.Code).To(Equal(status.CodeNotRunning))
		})
	})
})
