package station

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "labels"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			name      string
			savedName string
			err       error
		)

		JustBeforeEach(func() {
			savedName, err = storage.Save(name, []byte("<svg/>"))
		})

		When("the name is plain", func() {
			BeforeEach(func() {
				name = "OBT1.svg"
			})

			It("should return the name", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedName).To(Equal("OBT1.svg"))
			})

			It("should write the file", func() {
				Expect(filepath.Join(tmpDir, "labels", "OBT1.svg")).To(BeAnExistingFile())
			})
		})

		When("the name tries to escape the directory", func() {
			BeforeEach(func() {
				name = "../../escape.svg"
			})

			It("should keep the file inside the label directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedName).To(Equal("escape.svg"))
				Expect(filepath.Join(tmpDir, "labels", "escape.svg")).To(BeAnExistingFile())
				Expect(filepath.Join(tmpDir, "escape.svg")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		When("the label exists", func() {
			It("returns its content", func() {
				_, err := storage.Save("OBT1.svg", []byte("<svg/>"))
				Expect(err).NotTo(HaveOccurred())

				data, err := storage.Get("OBT1.svg")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("<svg/>"))
			})
		})

		When("the label does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := storage.Get("missing.svg")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("Delete", func() {
		It("removes the label", func() {
			_, err := storage.Save("OBT1.svg", []byte("<svg/>"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("OBT1.svg")).To(Succeed())
			Expect(filepath.Join(tmpDir, "labels", "OBT1.svg")).NotTo(BeAnExistingFile())
		})

		It("fails for a missing label", func() {
			Expect(storage.Delete("missing.svg")).NotTo(Succeed())
		})
	})
})
