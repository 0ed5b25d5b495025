package patterns

// Package patterns holds the signature tables the attack detector matches
// request text against. Matching is case-insensitive, first-set-wins, and
// the set order is fixed so results stay deterministic.

import "strings"

// Category names, in inspection order.
const (
	ScriptInjection  = "script-injection"
	PathTraversal    = "path-traversal"
	RemoteInclusion  = "remote-inclusion"
	CommandInjection = "command-injection"
	SQLInjection     = "sql-injection"
	NoSQLInjection   = "nosql-injection"
)

// Set groups the needles of one attack category. Needles are lowercase
// substrings; any one of them matching flags the whole set.
type Set struct {
	Category string
	Needles  []string
}

var sets = []Set{
	{
		Category: ScriptInjection,
		Needles: []string{
			"<script", "</script", "javascript:", "vbscript:",
			"onerror=", "onload=", "onmouseover=", "onfocus=",
			"document.cookie", "document.write", "window.location",
			"eval(", "alert(", "<iframe", "srcdoc=",
		},
	},
	{
		Category: PathTraversal,
		Needles: []string{
			"../", "..\\", "..%2f", "..%5c", "%2e%2e%2f", "%2e%2e/",
			"/etc/passwd", "/etc/shadow", "/proc/self",
			"c:\\windows", "boot.ini", "win.ini",
		},
	},
	{
		Category: RemoteInclusion,
		Needles: []string{
			"=http://", "=https://", "=ftp://", "=//",
			"php://", "file://", "expect://", "zip://", "phar://",
			"data:text/html",
		},
	},
	{
		Category: CommandInjection,
		Needles: []string{
			";ls", "; ls", "|ls", "| ls",
			";cat", "; cat", "|cat", "| cat",
			";id", "; id", "|id", "| id",
			";rm ", "; rm ", "|sh", "| sh", "|bash", "| bash",
			"$(", "`", "/bin/sh", "/bin/bash", "nc -e", "2>&1",
		},
	},
	{
		Category: SQLInjection,
		Needles: []string{
			"union select", "union all select",
			"or 1=1", "or '1'='1",
			"'; drop", "drop table", "insert into", "delete from",
			"information_schema", "xp_cmdshell", "load_file(",
			"sleep(", "benchmark(", "waitfor delay",
		},
	},
	{
		Category: NoSQLInjection,
		Needles: []string{
			"[$ne]", "[$gt]", "[$lt]", "[$regex]", "[$where]", "[$exists]",
			"{$ne", "{$gt", "{$lt", "{$where", "{$regex",
			"$where:", "db.eval(", "mapreduce(",
		},
	},
}

// Ordered returns the category sets in inspection order. The slice is
// shared; callers must not mutate it.
func Ordered() []Set { return sets }

// Categories returns the category names in inspection order.
func Categories() []string {
	out := make([]string, len(sets))
	for i, s := range sets {
		out[i] = s.Category
	}
	return out
}

// Match reports the first category with a signature present in text.
// The structural SQL check runs as part of the sql-injection set, so a
// tautology with no listed needle still lands in that category.
func Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, s := range sets {
		for _, n := range s.Needles {
			if strings.Contains(lower, n) {
				return s.Category, true
			}
		}
		if s.Category == SQLInjection && sqlShape(lower) {
			return s.Category, true
		}
	}
	return "", false
}

// sqlShape reports the tautology shape the needle list misses: a quote
// followed by an OR/AND connective and a comparison, as in "' or '1'='1".
func sqlShape(lower string) bool {
	for i := 0; i < len(lower); i++ {
		if lower[i] != '\'' && lower[i] != '"' {
			continue
		}
		rest := strings.TrimLeft(lower[i+1:], " ")
		var conn string
		switch {
		case strings.HasPrefix(rest, "or"):
			conn = "or"
		case strings.HasPrefix(rest, "and"):
			conn = "and"
		default:
			continue
		}
		tail := rest[len(conn):]
		if tail == "" {
			continue
		}
		// Require a boundary after the connective so words like
		// "orange" do not qualify.
		if c := tail[0]; c != ' ' && c != '\'' && c != '"' && c != '(' {
			continue
		}
		if strings.Contains(tail, "=") || strings.Contains(tail, "--") {
			return true
		}
	}
	return false
}
