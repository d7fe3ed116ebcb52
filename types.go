package texpub

import "time"

// Post is a LaTeX-authored article. Slug is empty until the first publish
// assigns it.
type Post struct {
	ID         int64
	Title      string
	Slug       string
	Source     string
	Abstract   string
	CreatedAt  time.Time
	Categories []Category
}

// Link is the public path of the post's first page.
func (p Post) Link() string {
	if p.Slug == "" {
		return ""
	}
	return "/posts/" + p.Slug + "/"
}

// Category groups posts.
type Category struct {
	ID    int64
	Title string
	Slug  string
}

// RenderedPage is the head/body fragment pair of one generated HTML page.
type RenderedPage struct {
	ID        int64
	PostID    int64
	Name      string
	Head      string
	Body      string
	UpdatedAt time.Time
}

// PostMedium is an asset persisted for a post.
type PostMedium struct {
	ID        int64
	PostID    int64
	Filename  string
	Path      string // relative to the media root
	URL       string
	CreatedAt time.Time
}

// TitleElement is a line of the site banner.
type TitleElement struct {
	ID   int64
	Text string
	Size int
}

// SocialLink is an external profile shown on the about page.
type SocialLink struct {
	ID   int64
	Name string
	URL  string
}

// AboutSection is a block of about-page text.
type AboutSection struct {
	ID    int64
	Title string
	Text  string
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
}

// DefaultSource is the LaTeX a new post starts from.
const DefaultSource = `\documentclass{article}
%\documentclass{book}
\usepackage[margin=2cm]{geometry}
\usepackage{geometry}
\usepackage{amsmath}
\usepackage{amsthm}
\usepackage{amssymb}
\usepackage{mathtools}
\usepackage{url}
\usepackage{cite}
\usepackage{caption}
\usepackage{subcaption}
\usepackage[title]{appendix}
\usepackage[colorlinks]{hyperref}
\usepackage[capitalize,nameinlink,noabbrev]{cleveref}
\usepackage[nottoc,notlot,notlof]{tocbibind}
\usepackage{graphicx}


\title{Default}

\theoremstyle{definition}

\newtheorem{definition}{Definition}[section]

\newtheorem{example}[definition]{Example}
\newtheorem{prop}[definition]{Proposition}
\newtheorem{lemma}[definition]{Lemma}
\newtheorem{thm}[definition]{Theorem}
\newtheorem{cor}[definition]{Corollary}
\newtheorem{rmk}[definition]{Remark}

\begin{document}
\maketitle
\section{Introduction}

This is the default post

\end{document}
`
