package questionbank

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const sampleBank = `
questions:
  - id: geo-001
    prompt: "Which river flows through Vienna?"
    options: ["Danube", "Rhine", "Elbe", "Vistula"]
    correct_index: 0
    difficulty: easy
  - prompt: "  What is 7 * 8?  "
    options: ["54", "56", "58"]
    correct_index: 1
    difficulty: Medium
`

func writeBank(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a valid bank file", t, func() {
		qs, err := Load(writeBank(t, sampleBank))
		So(err, ShouldBeNil)
		So(qs, ShouldHaveLength, 2)

		Convey("fields are normalized", func() {
			So(qs[0].ID, ShouldEqual, "geo-001")
			So(qs[1].ID, ShouldNotBeEmpty)
			So(qs[1].Prompt, ShouldEqual, "What is 7 * 8?")
			So(qs[1].Difficulty, ShouldEqual, "medium")
			So(qs[1].CorrectIndex, ShouldEqual, 1)
			opts, err := qs[0].OptionList()
			So(err, ShouldBeNil)
			So(opts, ShouldResemble, []string{"Danube", "Rhine", "Elbe", "Vistula"})
		})
	})

	Convey("Invalid banks are rejected", t, func() {
		cases := map[string]string{
			"empty prompt": `
questions:
  - prompt: ""
    options: ["a", "b"]
    correct_index: 0
    difficulty: easy`,
			"one option": `
questions:
  - prompt: "p"
    options: ["a"]
    correct_index: 0
    difficulty: easy`,
			"index out of range": `
questions:
  - prompt: "p"
    options: ["a", "b"]
    correct_index: 2
    difficulty: easy`,
			"unknown difficulty": `
questions:
  - prompt: "p"
    options: ["a", "b"]
    correct_index: 0
    difficulty: brutal`,
			"duplicate id": `
questions:
  - id: x
    prompt: "p"
    options: ["a", "b"]
    correct_index: 0
    difficulty: easy
  - id: x
    prompt: "q"
    options: ["a", "b"]
    correct_index: 1
    difficulty: hard`,
		}
		for name, body := range cases {
			_, err := Load(writeBank(t, body))
			So(err, ShouldNotBeNil)
			Printf("%s: %v\n", name, err)
		}
	})

	Convey("A missing file fails", t, func() {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func TestSeed(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		qs, err := Load(writeBank(t, sampleBank))
		So(err, ShouldBeNil)

		n, err := Seed(ctx, store, qs)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 2)

		Convey("seeding again writes nothing", func() {
			more := []model.Question{{ID: "extra", Prompt: "p", Difficulty: "easy"}}
			n, err := Seed(ctx, store, more)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
			count, _ := store.CountQuestions(ctx)
			So(count, ShouldEqual, 2)
		})
	})
}
