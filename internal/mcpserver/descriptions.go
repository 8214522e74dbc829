package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeAuditPair() string {
	return `Audits one refactored Python module against its original and its test module.

USE WHEN:
- Checking that a refactor of a single file kept its public surface
- Finding public methods the test module never calls
- Reviewing complexity and coverage of a rewritten module

INTERPRETING RESULTS:
- method_diff: per class (or <module> for top-level functions), methods missing from the refactor and methods added by it
- missing_tests: public methods with no call in the test module
- complexity: per function, cyclomatic complexity plus line coverage; coverage "unknown" means no report entry could be attributed, which is not the same as 0
- quality: per tool findings when quality plugins are enabled

METRICS RETURNED:
- One ledger record keyed by the refactored file's repository-relative path`
}

func describeAuditTree() string {
	return `Audits every module of an original tree against its counterpart in the refactored tree.

USE WHEN:
- Verifying a package-wide refactor or migration
- Producing a drift ledger for a whole codebase
- Comparing an old source tree with its rewrite

INTERPRETING RESULTS:
- Files absent from the refactored tree are skipped and listed in warnings
- Without an original tree every file is treated as new: all methods are "added"
- Complexity above the configured thresholds is listed under summary.violations

METRICS RETURNED:
- The ledger keyed by normalized path, run warnings and a summary`
}

func describeAuditChanged() string {
	return `Audits only the refactored modules changed since a base git revision, including uncommitted work.

USE WHEN:
- Reviewing a feature branch before merge
- Re-auditing incrementally after edits

INTERPRETING RESULTS:
- Changes are taken relative to the merge base of HEAD and the base revision
- A changed file with no original counterpart is a new file

METRICS RETURNED:
- Ledger records for the changed files only, run warnings and a summary`
}

func describeQualityMerge() string {
	return `Runs the configured Python quality tools (black, flake8, mypy, pydocstyle, coverage) and merges their reports by file.

USE WHEN:
- Collecting lint, type and docstring findings for files under review
- Checking which files a formatter would rewrite

INTERPRETING RESULTS:
- A tool only runs when its report is missing or empty; existing reports are reused
- Report lines that match no known format are kept under the "<unparsed>" key
- Tool failures are listed in warnings and never stop the other tools

METRICS RETURNED:
- Quality-only ledger records keyed by normalized path`
}
