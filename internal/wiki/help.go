// Package wiki holds built-in wiki content.
package wiki

// HelpText is the markup reference served at /help and seeded into new
// databases under the help key.
const HelpText = `== [[http://www.wikicreole.org|Creole]] //Live// Wiki
----
=== text styles
//italic// and **bold**.
----
=== bullet list
* a
** aa
*** aaa
* b
----
=== numbered list
# 1
## 11
### 111
# 2
## 21
## 22
----
=== mixed list
* a
*# a1
*# a2
*## a21
* b
----
=== links
[[https://www.wikicreole.org]]

[[Some Page]] opens another page of this wiki.

[[recipes/soup|a nested page with a label]]
----
=== headings
== h1
=== h2
==== h3
===== h4
====== h5
======= h6
----
=== linebreaks
No
linebreak!

Use empty row

Force\\linebreak
----
=== horizontal line
----
=== image
{{https://www.w3schools.com/html/w3schools.jpg}}
{{https://www.w3schools.com/html/w3schools.jpg|with a caption}}
----
=== table
|=|=table|=header|
|a|table|row|
|b|table|row|
|c||empty cell|
=== don't format
{{{
== [[Nowiki]]:
//**don't** format//
}}}
`
