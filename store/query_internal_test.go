package store

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SelectQuery builder", func() {
	It("numbers postgres placeholders in order", func() {
		q := SelectQuery{Table: "breeding_plans", OrderBy: "expected_kindle_date", Limit: 5}.
			Eq("created_by", "owner-1").
			Eq("is_deleted", false).
			Where("status", OpIn, []string{"Planned", "Breeding"})

		sql, args, err := postgresDialect.build(q)
		Expect(err).NotTo(HaveOccurred())
		Expect(sql).To(Equal("SELECT * FROM breeding_plans WHERE created_by = $1 AND is_deleted = $2 AND status IN ($3, $4) ORDER BY expected_kindle_date ASC LIMIT 5"))
		Expect(args).To(Equal([]any{"owner-1", false, "Planned", "Breeding"}))
	})

	It("uses question marks for sqlite", func() {
		sql, args, err := sqliteDialect.build(SelectQuery{Table: "rabbits", Columns: []string{"name"}}.Where("name", OpILike, "Clo"))
		Expect(err).NotTo(HaveOccurred())
		Expect(sql).To(Equal("SELECT name FROM rabbits WHERE LOWER(name) LIKE ?"))
		Expect(args).To(Equal([]any{"%clo%"}))
	})

	It("renders an empty IN as a false predicate", func() {
		sql, args, err := sqliteDialect.build(SelectQuery{Table: "rabbits"}.Where("id", OpIn, []string{}))
		Expect(err).NotTo(HaveOccurred())
		Expect(sql).To(Equal("SELECT * FROM rabbits WHERE 1 = 0"))
		Expect(args).To(BeEmpty())
	})

	It("rejects unknown operators and bad identifiers", func() {
		_, _, err := sqliteDialect.build(SelectQuery{Table: "rabbits"}.Where("name", Op("like"), "x"))
		Expect(err).To(MatchError(ContainSubstring("unknown filter op")))

		_, _, err = sqliteDialect.build(SelectQuery{Table: "rabbits", OrderBy: "name desc"})
		Expect(err).To(MatchError(ContainSubstring("invalid identifier")))
	})

	It("does not share filters between derived queries", func() {
		base := SelectQuery{Table: "rabbits"}.Eq("a", 1)
		left := base.Eq("b", 2)
		right := base.Eq("c", 3)
		Expect(left.Filters).To(HaveLen(2))
		Expect(right.Filters[1].Column).To(Equal("c"))
		Expect(left.Filters[1].Column).To(Equal("b"))
	})

	It("compares numbers, dates and strings in memory", func() {
		Expect(compare(2, 10.5)).To(Equal(-1))
		Expect(compare("2026-01-02", "2025-12-31")).To(Equal(1))
		Expect(compare("abc", "abc")).To(Equal(0))
	})
})
