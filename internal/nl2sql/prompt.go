package nl2sql

import (
	"strings"
)

// Example is one worked question and its reference SQL.
type Example struct {
	Question string
	SQL      string
}

// FewShotExamples anchor the style of generated SQL. They are the same for
// every question.
var FewShotExamples = []Example{
	{"What are the names of poker players?", "SELECT people.name FROM people JOIN poker_player ON people.people_id = poker_player.people_id;"},
	{"Show the stadium names without any concert.", "SELECT name FROM stadium WHERE stadium_id NOT IN (SELECT stadium_id FROM concert)"},
	{"How many models does each car maker produce? List maker full name, id and the number.", "SELECT car_makers.fullname, car_makers.id, COUNT(*) FROM car_makers JOIN model_list ON car_makers.id = model_list.maker GROUP BY car_makers.id;"},
	{"Show all template type codes that are not used by any document.", "SELECT template_type_code FROM Templates EXCEPT SELECT template_type_code FROM Templates JOIN Documents ON Templates.template_id = Documents.template_id;"},
	{"Find the minimum grade of students who have no friends.", "SELECT MIN(grade) FROM Highschooler WHERE id NOT IN (SELECT student_id FROM Friend);"},
	{"Return the country codes for countries that do not speak English.", `SELECT CountryCode FROM countrylanguage EXCEPT SELECT CountryCode FROM countrylanguage WHERE LANGUAGE = "English"`},
	{"What is the series name and country of all TV channels that are playing cartoons directed by Ben Jones and cartoons directed by Michael Chang?", "SELECT T1.series_name, T1.country FROM TV_Channel AS T1 JOIN cartoon AS T2 ON T1.id = T2.Channel WHERE T2.directed_by = 'Michael Chang' INTERSECT SELECT T1.series_name, T1.country FROM TV_Channel AS T1 JOIN cartoon AS T2 ON T1.id = T2.Channel WHERE T2.directed_by = 'Ben Jones'"},
	{"Show all template type codes with less than three templates.", "SELECT template_type_code FROM Templates GROUP BY template_type_code HAVING count(*) < 3"},
	{"What are the different years in which there were cars produced that weighed less than 4000 and also cars that weighted more than 3000 ?", "select distinct year from cars_data where weight between 3000 and 4000;"},
	{"What are the names of nations where both English and French are official languages?", `SELECT T1.Name FROM country AS T1 JOIN countrylanguage AS T2 ON T1.Code = T2.CountryCode WHERE T2.Language = "English" AND T2.IsOfficial = "T" INTERSECT SELECT T1.Name FROM country AS T1 JOIN countrylanguage AS T2 ON T1.Code = T2.CountryCode WHERE T2.Language = "French" AND T2.IsOfficial = "T"`},
	{"Find the first name and gender of student who have more than one pet.", "SELECT T1.fname, T1.sex FROM student AS T1 JOIN has_pet AS T2 ON T1.stuid = T2.stuid GROUP BY T1.stuid HAVING count(*) > 1"},
	{"Which professional did not operate any treatment on dogs? List the professional's id, role and email.", "SELECT professional_id, role_code, email_address FROM Professionals EXCEPT SELECT T1.professional_id, T1.role_code, T1.email_address FROM Professionals AS T1 JOIN Treatments AS T2 ON T1.professional_id = T2.professional_id"},
}

const generalRules = `You are an expert in writing SQLite-compatible SQL queries for natural language questions.

General SQL Rules:
- Use only the exact tables and columns provided in the schema. Do NOT invent or guess.
- Use WHERE ... = ... for direct filtering. Do NOT JOIN just to filter.
- Use JOINs only if the question explicitly asks for values from multiple tables.
- Do NOT use subqueries or IN (SELECT ...) to simulate joins.
- Prefer: SELECT ... FROM A JOIN B ON A.x = B.y WHERE ...
- Use EXCEPT only for exclusion (e.g., "who did not...").
- Do NOT use column/table aliases (like T1, s.) unless JOIN is needed.
- DO NOT use WHERE x IS NOT NULL. Assume all columns are clean.
- Do NOT rename columns using AS unless disambiguation is required.
- Use COUNT(DISTINCT column) if the question includes "distinct", "different" or "unique".
    - Example: "How many different nationalities?" -> COUNT(DISTINCT Nationality)
    - Example: "Number of distinct loser names?" -> COUNT(DISTINCT loser_name)
- Do NOT use MAX/MIN for dates unless the question directly asks for latest/earliest.
- Use LIKE '%...%' only for "contains", "includes", or fuzzy matching.
- When using GROUP BY:
    - Group by primary fields (e.g., student.name) NOT IDs
    - If joining, group only by the correct primary field
- Use != for "not equal to". Do NOT use <>.
- Use exact column and table names and match their casing (e.g., LANGUAGE, not language).
- Combine multiple aggregate columns in one SELECT, without using AS.
- Avoid expressions like SELECT column AS new_name or SELECT AVG(x) AS avg_x; renamed columns cause mismatches in exact SQL evaluation.
- When asked for the youngest something, use the age column rather than a date of birth column.
- Always use BETWEEN A AND B for numeric ranges, not WHERE x > A AND x < B.
- If the question asks for a column value of the row with the largest, smallest, youngest, oldest or biggest value in another column, use ORDER BY ... DESC LIMIT 1.
    - Example (Correct): SELECT accelerate FROM cars_data ORDER BY horsepower DESC LIMIT 1
    - Example (Wrong): SELECT MAX(horsepower) FROM cars_data
- If the question is as simple as "What is the age of the oldest dog?", use MAX(age).`

// Directives maps a profile onto natural-language rules, in field order.
// Absent fields contribute nothing.
func Directives(p ConstraintProfile) []string {
	var out []string
	if p.FilterStyle != nil {
		switch *p.FilterStyle {
		case FilterEquals:
			out = append(out, "- Use `=` for filtering text unless partial match is asked.")
		case FilterLike:
			out = append(out, "- Use `LIKE '%value%'` only if partial match is intended.")
		}
	}
	if p.RangeStyle != nil {
		switch *p.RangeStyle {
		case RangeBetween:
			out = append(out, "- Use BETWEEN A AND B for numeric range filters.")
		case RangeComparison:
			out = append(out, "- Use BETWEEN A AND B for numeric ranges instead of WHERE x > A AND x < B.")
		}
	}
	if isFalse(p.AllowIn) {
		out = append(out,
			"- Do NOT use IN (...) unless it is a subquery or exclusion (like NOT IN (SELECT ...)).",
			"- Use OR clauses for multiple values instead.",
		)
	}
	if p.DateStyle != nil && *p.DateStyle == DateDirect {
		out = append(out, "- Avoid using date functions like strftime; use WHERE year = 2020.")
	}
	if p.HavingCount != nil && *p.HavingCount == "*" {
		out = append(out, "- Use COUNT(*) in HAVING unless a specific column is requested.")
	}
	if isTrue(p.GroupByPrimary) {
		out = append(out, "- When grouping, use the primary field (e.g., name) not ID fields.")
	}
	if isTrue(p.UseCountStar) {
		out = append(out, "- Use COUNT(*) unless the question refers to getting unique values by saying distinct, different or unique.")
	}
	if isTrue(p.UseCountDistinct) {
		out = append(out, "- Use COUNT(DISTINCT column) because the question asks for different or unique values.")
	}
	if isFalse(p.AllowAliases) {
		out = append(out, "- Do NOT use table/column aliases like AS or T1 unless absolutely needed.")
	}
	if isFalse(p.AllowJoin) {
		out = append(out, "- Avoid JOIN unless values from multiple tables are needed.")
	}
	return out
}

func HintBlock(p ConstraintProfile) string {
	return strings.Join(Directives(p), "\n")
}

func isTrue(b *bool) bool  { return b != nil && *b }
func isFalse(b *bool) bool { return b != nil && !*b }

// Compose builds the generation prompt. It is a pure function of its
// inputs.
func Compose(schemaText string, profile ConstraintProfile, question string) string {
	var b strings.Builder
	b.WriteString(generalRules)
	b.WriteString("\n\nDynamic Constraints Based on Question:\n")
	b.WriteString(HintBlock(profile))
	b.WriteString("\n\nExample Questions of different difficulties and their SQL:\n\n")
	for i, example := range FewShotExamples {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Q: ")
		b.WriteString(example.Question)
		b.WriteString("\nSQL: ")
		b.WriteString(example.SQL)
	}
	b.WriteString("\n\nSchema:\n")
	b.WriteString(schemaText)
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\nSQL:")
	return b.String()
}

// RewritePrompt asks the model to normalize formatting of sql without
// changing its logic.
func RewritePrompt(sql Statement) string {
	return `You are a SQL formatting corrector.

Revise the SQL query below ONLY IF it violates any of the following rules. Do not change the logic, only fix formatting.

Rules:
- Remove column or table aliases unless used in JOINs.
- Remove AS ... column renaming unless needed for disambiguation.
- Remove WHERE x IS NOT NULL; assume clean data.
- Avoid IN (SELECT ...) unless it is for exclusion (NOT IN).
- Use JOINs instead of subqueries if simulating joins.
- Use SELECT ... FROM A JOIN B ON A.x = B.y WHERE ... rather than nested filters.
- If the SQL uses WHERE x IN ('a', 'b'), convert it to WHERE x = 'a' OR x = 'b'.
If the SQL is already correct, return the exact SQL query unchanged with no explanation, formatting or commentary.
Only return valid SQL, starting with SELECT. No markdown, no text.

SQL:
` + string(sql)
}
