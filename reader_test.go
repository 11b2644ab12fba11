package cff_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/bsm/cff"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	var data []byte
	var src *countingReaderAt
	var subject *cff.Reader

	BeforeEach(func() {
		var err error
		data = encode(sampleTable())
		src = &countingReaderAt{r: bytes.NewReader(data)}
		subject, err = cff.NewReader(src, int64(len(data)), nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(subject.Close()).To(Succeed())
	})

	It("should init", func() {
		Expect(subject.NumRows()).To(Equal(uint64(2)))
		Expect(subject.NumColumns()).To(Equal(3))
		Expect(subject.Names()).To(Equal([]string{"id", "name", "score"}))
		Expect(subject.HeaderSize()).To(Equal(int64(118)))
		Expect(subject.TrailingBytes()).To(Equal(int64(0)))

		d, ok := subject.Descriptor("name")
		Expect(ok).To(BeTrue())
		Expect(d.Type).To(Equal(cff.String))
		Expect(d.UncompressedSize).To(Equal(uint64(22)))
		Expect(d.String()).To(HavePrefix("Column(name=name, type=STRING, offset="))

		_, ok = subject.Descriptor("missing")
		Expect(ok).To(BeFalse())
	})

	It("should describe the schema", func() {
		Expect(subject.Schema()).To(Equal(map[string]cff.Type{
			"id":    cff.Int32,
			"name":  cff.String,
			"score": cff.Float64,
		}))

		cols := subject.Columns()
		Expect(subject.Info()).To(Equal("Rows: 2\nColumns: 3\n\nSchema:\n" +
			"  " + cols[0].String() + "\n" +
			"  " + cols[1].String() + "\n" +
			"  " + cols[2].String() + "\n"))
		Expect(subject.Info()).To(ContainSubstring("  Column(name=id, type=INT32, offset=118, compressed="))
		Expect(src.Touches(subject.HeaderSize(), int64(len(data)))).To(BeFalse())
	})

	It("should only read the header on init", func() {
		Expect(src.Touches(subject.HeaderSize(), int64(len(data)))).To(BeFalse())
	})

	It("should read all columns", func() {
		tbl, err := subject.ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(tbl).To(Equal(sampleTable()))

		tbl, err = subject.ReadColumns()
		Expect(err).NotTo(HaveOccurred())
		Expect(tbl.Names()).To(Equal([]string{"id", "name", "score"}))
	})

	It("should read selected columns", func() {
		tbl, err := subject.ReadColumns("name")
		Expect(err).NotTo(HaveOccurred())
		Expect(tbl).To(Equal(cff.NewTable(cff.StringColumn("name", "hello", "world"))))
		Expect(tbl.Records()).To(Equal([]map[string]interface{}{
			{"name": "hello"},
			{"name": "world"},
		}))
	})

	It("should read columns in requested order", func() {
		tbl, err := subject.ReadColumns("score", "id")
		Expect(err).NotTo(HaveOccurred())
		Expect(tbl.Names()).To(Equal([]string{"score", "id"}))
		Expect(tbl.Columns[0].Float64s).To(Equal([]float64{95.5, 87.0}))
		Expect(tbl.Columns[1].Int32s).To(Equal([]int32{1, 2}))
	})

	It("should read single columns", func() {
		col, err := subject.ReadColumn("id")
		Expect(err).NotTo(HaveOccurred())
		Expect(col).To(Equal(cff.Int32Column("id", 1, 2)))
	})

	It("should not fetch unrequested columns", func() {
		cols := subject.Columns()
		src.Reset()

		_, err := subject.ReadColumns("name")
		Expect(err).NotTo(HaveOccurred())
		Expect(src.NumReads()).To(Equal(1))
		Expect(src.Touches(0, int64(cols[1].Offset))).To(BeFalse())
		Expect(src.Touches(int64(cols[1].Offset), int64(cols[1].End()))).To(BeTrue())
		Expect(src.Touches(int64(cols[2].Offset), int64(len(data)))).To(BeFalse())
	})

	It("should reject unknown columns", func() {
		src.Reset()
		_, err := subject.ReadColumns("id", "missing")
		Expect(err).To(haveKind(cff.UnknownColumn))
		Expect(err).To(MatchError(`cff: unknown column: column "missing": not found`))
		Expect(src.NumReads()).To(Equal(0))
	})

	It("should reject duplicate requests", func() {
		_, err := subject.ReadColumns("id", "id")
		Expect(err).To(haveKind(cff.SchemaError))
	})

	It("should decode in parallel", func() {
		data := encode(seedTable(5000))
		r, err := cff.NewReader(bytes.NewReader(data), int64(len(data)), &cff.ReaderOptions{Concurrency: 4})
		Expect(err).NotTo(HaveOccurred())

		tbl, err := r.ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(tbl).To(Equal(seedTable(5000)))

		tbl, err = r.ReadColumns("str", "id")
		Expect(err).NotTo(HaveOccurred())
		Expect(tbl.Names()).To(Equal([]string{"str", "id"}))
		Expect(tbl.Columns[1].Int32s[4999]).To(Equal(int32(4999 * 4)))
	})

	It("should tolerate trailing bytes", func() {
		padded := append(append([]byte{}, data...), 0, 0, 0)
		r, err := openReader(padded)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.TrailingBytes()).To(Equal(int64(3)))

		tbl, err := r.ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(tbl).To(Equal(sampleTable()))
	})

	It("should prevent reads after close", func() {
		Expect(subject.Close()).To(Succeed())
		_, err := subject.ReadAll()
		Expect(err).To(MatchError(cff.ErrClosed))

		// re-open for AfterEach
		subject, _ = openReader(data)
	})

	Describe("corruption", func() {
		It("should detect bad magic", func() {
			data[1] ^= 0xff
			_, err := openReader(data)
			Expect(err).To(haveKind(cff.BadMagic))
		})

		It("should detect truncated files", func() {
			cols := subject.Columns()
			r, err := openReader(data[:subject.HeaderSize()])
			Expect(err).NotTo(HaveOccurred())

			for _, c := range cols {
				_, err := r.ReadColumns(c.Name)
				Expect(err).To(haveKind(cff.OffsetOutOfBounds))
			}

			r, err = openReader(data[:cols[2].Offset+1])
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadColumns("id", "name")
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadColumns("score")
			Expect(err).To(haveKind(cff.OffsetOutOfBounds))
			Expect(err.Error()).To(ContainSubstring(`offset out of bounds: column "score"`))
		})

		It("should detect short reads", func() {
			r, err := cff.NewReader(bytes.NewReader(data[:len(data)-2]), int64(len(data)), nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = r.ReadColumns("id")
			Expect(err).NotTo(HaveOccurred())

			_, err = r.ReadAll()
			Expect(err).To(haveKind(cff.TruncatedBlock))
			Expect(err.(*cff.Error).Column).To(Equal("score"))
		})

		It("should detect corrupt blocks", func() {
			cols := subject.Columns()

			corrupt := append([]byte{}, data...)
			corrupt[cols[0].Offset] = 0 // zlib header
			r, err := openReader(corrupt)
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadColumns("id")
			Expect(err).To(haveKind(cff.DecompressionFailed))

			corrupt = append([]byte{}, data...)
			corrupt[len(corrupt)-1] ^= 0xff // checksum
			r, err = openReader(corrupt)
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadColumns("score")
			Expect(err).To(haveKind(cff.DecompressionFailed))
			Expect(err.(*cff.Error).Column).To(Equal("score"))

			_, err = r.ReadColumns("id", "name")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fail atomically", func() {
			corrupt := append([]byte{}, data...)
			corrupt[len(corrupt)-1] ^= 0xff
			r, err := cff.NewReader(bytes.NewReader(corrupt), int64(len(corrupt)), &cff.ReaderOptions{Concurrency: 3})
			Expect(err).NotTo(HaveOccurred())

			tbl, err := r.ReadAll()
			Expect(err).To(haveKind(cff.DecompressionFailed))
			Expect(tbl).To(BeNil())
		})

		It("should detect size mismatches", func() {
			cols := subject.Columns()
			pos := 20 + 4 + 2 + 1 + 8 + 8 // uncompressed size of "id"
			Expect(binary.LittleEndian.Uint64(data[pos:])).To(Equal(cols[0].UncompressedSize))

			binary.LittleEndian.PutUint64(data[pos:], 12)
			r, err := openReader(data)
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadColumns("id")
			Expect(err).To(haveKind(cff.SizeMismatch))
		})

		It("should detect undersized string blocks", func() {
			str := encodeString("a", "b", "c")
			file := craftFile(3, "s", cff.String, str)

			// claim more rows than the offset array holds
			binary.LittleEndian.PutUint64(file[8:], 10)
			r, err := openReader(file)
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadAll()
			Expect(err).To(haveKind(cff.SizeMismatch))
		})

		It("should detect overlapping blocks", func() {
			file := craftFile(1, "n", cff.Int32, []byte{1, 0, 0, 0})
			binary.LittleEndian.PutUint64(file[20+4+1+1:], 4)
			r, err := openReader(file)
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadAll()
			Expect(err).To(haveKind(cff.OffsetOutOfBounds))
		})

		It("should detect overflowing block sizes", func() {
			file := craftFile(1, "n", cff.Int32, []byte{1, 0, 0, 0})
			binary.LittleEndian.PutUint64(file[20+4+1+1+8:], math.MaxUint64)
			r, err := openReader(file)
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadAll()
			Expect(err).To(haveKind(cff.OffsetOutOfBounds))
		})

		It("should detect non-monotonic string offsets", func() {
			enc := []byte{}
			for _, o := range []uint32{0, 5, 3, 10} {
				enc = binary.LittleEndian.AppendUint32(enc, o)
			}
			enc = append(enc, "helloworld"...)

			r, err := openReader(craftFile(3, "s", cff.String, enc))
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadAll()
			Expect(err).To(haveKind(cff.OffsetOutOfRange))
			Expect(err.(*cff.Error).Column).To(Equal("s"))
		})

		It("should detect invalid UTF-8", func() {
			enc := []byte{}
			for _, o := range []uint32{0, 2} {
				enc = binary.LittleEndian.AppendUint32(enc, o)
			}
			enc = append(enc, 0xc3, 0x28)

			r, err := openReader(craftFile(1, "s", cff.String, enc))
			Expect(err).NotTo(HaveOccurred())
			_, err = r.ReadAll()
			Expect(err).To(haveKind(cff.InvalidUtf8))
		})
	})

	Describe("Open", func() {
		var dir string

		BeforeEach(func() {
			var err error
			dir, err = ioutil.TempDir("", "cff-test")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(os.RemoveAll(dir)).To(Succeed())
		})

		It("should open files", func() {
			fname := filepath.Join(dir, "sample.cff")
			Expect(cff.WriteFile(fname, seedTable(100), nil)).To(Succeed())

			r, err := cff.Open(fname, nil)
			Expect(err).NotTo(HaveOccurred())
			defer r.Close()

			Expect(r.NumRows()).To(Equal(uint64(100)))
			tbl, err := r.ReadColumns("val")
			Expect(err).NotTo(HaveOccurred())
			Expect(tbl.Columns[0].Float64s[99]).To(Equal(float64(99) / 3))
		})

		It("should wait for pending reads on close", func() {
			fname := filepath.Join(dir, "busy.cff")
			expected := seedTable(2000)
			Expect(cff.WriteFile(fname, expected, nil)).To(Succeed())

			r, err := cff.Open(fname, &cff.ReaderOptions{Concurrency: 4})
			Expect(err).NotTo(HaveOccurred())

			const numReaders = 8
			errs := make(chan error, numReaders)
			started := make(chan struct{}, numReaders)

			var wg sync.WaitGroup
			for i := 0; i < numReaders; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()

					started <- struct{}{}
					for {
						tbl, err := r.ReadAll()
						if err != nil {
							errs <- err
							return
						}
						if !equalTables(tbl, expected) {
							errs <- fmt.Errorf("read unexpected table")
							return
						}
					}
				}()
			}
			for i := 0; i < numReaders; i++ {
				<-started
			}

			Expect(r.Close()).To(Succeed())
			wg.Wait()
			close(errs)

			Expect(errs).To(HaveLen(numReaders))
			for err := range errs {
				Expect(err).To(MatchError(cff.ErrClosed))
			}
		})

		It("should reject invalid files", func() {
			fname := filepath.Join(dir, "bad.cff")
			Expect(ioutil.WriteFile(fname, []byte("not a cff file"), 0644)).To(Succeed())

			_, err := cff.Open(fname, nil)
			Expect(err).To(haveKind(cff.BadMagic))

			_, err = cff.Open(filepath.Join(dir, "missing.cff"), nil)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})
})

func encodeString(vals ...string) []byte {
	col := cff.StringColumn("", vals...)
	enc, err := cff.EncodeColumn(nil, &col)
	Expect(err).NotTo(HaveOccurred())
	return enc
}
