package tasks

import "github.com/fentz26/taskforge/internal/models"

type builtin struct {
	id  string
	def Definition
}

// builtins are registered by NewGenerator in this order. Selection by
// identity hash indexes into this order, so appending is safe but
// reordering reshuffles every student's assignment.
var builtins = []builtin{
	{
		id: "sum-of-sales",
		def: Definition{
			Name:        "Sales Summary Application",
			Description: "Create an app that processes CSV data and displays sales summaries",
			Round1: RoundSpec{
				Brief: `Publish a single-page site that fetches data.csv from attachments, sums its sales column, sets the title to "Sales Summary {seed}", displays the total inside #total-sales, and loads Bootstrap 5 from jsdelivr.`,
				Checks: []string{
					"Repo has MIT license",
					"README.md is professional",
					"js: document.title === `Sales Summary {seed}`",
					`js: !!document.querySelector("link[href*='bootstrap']")`,
					`js: Math.abs(parseFloat(document.querySelector("#total-sales").textContent) - {result}) < 0.01`,
				},
				Attachments: []models.Attachment{
					{Name: "data.csv", URL: "data:text/csv;base64,{seed}"},
				},
			},
			Round2: &RoundSpec{
				Brief: "Add a Bootstrap table #product-sales that lists each product with its total sales and keeps #total-sales accurate after render.",
				Checks: []string{
					`js: document.querySelectorAll("#product-sales tbody tr").length >= 1`,
					`js: (() => { const rows = [...document.querySelectorAll("#product-sales tbody tr td:last-child")]; const sum = rows.reduce((acc, cell) => acc + parseFloat(cell.textContent), 0); return Math.abs(sum - {result}) < 0.01; })()`,
				},
			},
		},
	},
	{
		id: "markdown-to-html",
		def: Definition{
			Name:        "Markdown to HTML Converter",
			Description: "Create an app that converts Markdown to HTML with syntax highlighting",
			Round1: RoundSpec{
				Brief: "Publish a static page that converts input.md from attachments to HTML with marked, renders it inside #markdown-output, and loads highlight.js for code blocks.",
				Checks: []string{
					"Repo has MIT license",
					"README.md is professional",
					`js: !!document.querySelector("script[src*='marked']")`,
					`js: !!document.querySelector("script[src*='highlight.js']") || !!document.querySelector("link[href*='highlight.js']")`,
					`js: document.querySelector("#markdown-output").innerHTML.includes("<h")`,
				},
				Attachments: []models.Attachment{
					{Name: "input.md", URL: "data:text/markdown;base64,{seed}"},
				},
			},
			Round2: &RoundSpec{
				Brief: "Add tabs #markdown-tabs that switch between rendered HTML in #markdown-output and the original Markdown in #markdown-source while keeping content in sync.",
				Checks: []string{
					`js: document.querySelectorAll("#markdown-tabs button").length >= 2`,
					`js: document.querySelector("#markdown-source").textContent.trim().length > 0`,
				},
			},
		},
	},
	{
		id: "github-user-created",
		def: Definition{
			Name:        "GitHub User Information",
			Description: "Create an app that fetches and displays GitHub user information",
			Round1: RoundSpec{
				Brief: `Publish a Bootstrap page with form id="github-user-{seed}" that fetches a GitHub username, optionally uses ?token=, and displays the account creation date in YYYY-MM-DD UTC inside #github-created-at.`,
				Checks: []string{
					"Repo has MIT license",
					"README.md is professional",
					`js: document.querySelector("#github-user-{seed}").tagName === "FORM"`,
					`js: !!document.querySelector("script").textContent.includes("https://api.github.com/users/")`,
				},
			},
			Round2: &RoundSpec{
				Brief: "Show an aria-live alert #github-status that reports when a lookup starts, succeeds, or fails.",
				Checks: []string{
					`js: document.querySelector("#github-status").getAttribute("aria-live") === "polite"`,
					`js: !!document.querySelector("script").textContent.includes("github-status")`,
				},
			},
		},
	},
}
